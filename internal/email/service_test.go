package email

import (
	"strings"
	"testing"
)

func TestIsConfigured(t *testing.T) {
	cases := []struct {
		name   string
		config Config
		want   bool
	}{
		{"fully configured", Config{Host: "smtp.example.com", Port: "587", From: "no-reply@example.com"}, true},
		{"missing host", Config{Port: "587", From: "no-reply@example.com"}, false},
		{"missing port", Config{Host: "smtp.example.com", From: "no-reply@example.com"}, false},
		{"missing from", Config{Host: "smtp.example.com", Port: "587"}, false},
		{"empty", Config{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewService(tc.config).IsConfigured(); got != tc.want {
				t.Errorf("IsConfigured() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSendEmailUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	err := svc.SendEmail([]string{"mod@example.com"}, "subject", "body")
	if err == nil {
		t.Fatal("expected error when email is not configured")
	}
	if !strings.Contains(err.Error(), "not configured") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSendCommentNotificationUnconfigured(t *testing.T) {
	svc := NewService(Config{})
	err := svc.SendCommentNotification("mod@example.com", CommentNotificationData{
		Author:       "Anonymous",
		Text:         "Great insight!",
		InsightTitle: "Market Entry",
		InsightSlug:  "market-entry",
	})
	if err == nil {
		t.Fatal("expected error when email is not configured")
	}
}
