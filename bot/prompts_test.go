package bot

import (
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/predictbot/session"
	"github.com/m3rciful/predictbot/store"
)

func TestCaptureAnnouncement(t *testing.T) {
	cases := []struct {
		name string
		msg  *tele.Message
		want store.Announcement
		ok   bool
	}{
		{
			name: "text",
			msg:  &tele.Message{Text: "session open"},
			want: store.Announcement{Type: store.AnnouncementText, Content: "session open"},
			ok:   true,
		},
		{
			name: "photo with caption",
			msg:  &tele.Message{Photo: &tele.Photo{File: tele.File{FileID: "ph-1"}}, Caption: "go"},
			want: store.Announcement{Type: store.AnnouncementPhoto, Content: "ph-1", Caption: "go"},
			ok:   true,
		},
		{
			name: "animation",
			msg:  &tele.Message{Animation: &tele.Animation{File: tele.File{FileID: "an-1"}}},
			want: store.Announcement{Type: store.AnnouncementAnimation, Content: "an-1"},
			ok:   true,
		},
		{
			name: "video",
			msg:  &tele.Message{Video: &tele.Video{File: tele.File{FileID: "vd-1"}}, Caption: "ends"},
			want: store.Announcement{Type: store.AnnouncementVideo, Content: "vd-1", Caption: "ends"},
			ok:   true,
		},
		{
			name: "empty message",
			msg:  &tele.Message{Text: "   "},
			ok:   false,
		},
		{
			name: "nil message",
			msg:  nil,
			ok:   false,
		},
	}

	for _, tc := range cases {
		got, ok := captureAnnouncement(tc.msg)
		if ok != tc.ok {
			t.Errorf("%s: ok = %v, want %v", tc.name, ok, tc.ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestChannelLabel(t *testing.T) {
	if got := channelLabel(session.Status{}); got != "not set" {
		t.Fatalf("empty status label = %q", got)
	}
	if got := channelLabel(session.Status{ChannelID: -100123}); got != "-100123" {
		t.Fatalf("untitled label = %q", got)
	}
	if got := channelLabel(session.Status{ChannelID: -100123, ChannelTitle: "Signals"}); got != "Signals" {
		t.Fatalf("titled label = %q", got)
	}
}

func TestFormatRemaining(t *testing.T) {
	if got := formatRemaining(45 * time.Second); got != "45s" {
		t.Fatalf("sub-minute = %q", got)
	}
	if got := formatRemaining(29*time.Minute + 59*time.Second); got != "29m" {
		t.Fatalf("minutes = %q", got)
	}
}

func TestStartErrorText(t *testing.T) {
	if startErrorText(session.ErrNotConfigured) == "" {
		t.Fatal("empty text for ErrNotConfigured")
	}
	if startErrorText(session.ErrNotConfigured) == startErrorText(session.ErrInvalidDuration) {
		t.Fatal("distinct errors should produce distinct messages")
	}
}
