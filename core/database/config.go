package database

import coreconfig "github.com/m3rciful/predictbot/core/config"

// Config holds connection settings for the optional prediction history database.
// It aliases the struct defined in core/config so the config package does not
// need to import this package.
type Config = coreconfig.DatabaseConfig
