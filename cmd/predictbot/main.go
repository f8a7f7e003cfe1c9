package main

import (
	"log"

	"github.com/m3rciful/predictbot/bot"
	corecmd "github.com/m3rciful/predictbot/core/cmd"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		Bootstrap:         bot.Build,
	})
	if err != nil {
		log.Fatalf("predictbot: %v", err)
	}
}
