// Package email sends moderation notifications via SMTP.
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// SendEmail sends a plain text email
func (s *Service) SendEmail(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "),
		from,
		subject,
		body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

// CommentNotificationData holds the fields for a pending-comment notification.
type CommentNotificationData struct {
	Author       string
	Text         string
	InsightTitle string
	InsightSlug  string
}

// SendCommentNotification tells the moderation address that a new comment is
// awaiting review.
func (s *Service) SendCommentNotification(to string, data CommentNotificationData) error {
	subject := fmt.Sprintf("New comment awaiting moderation on %q", data.InsightTitle)
	body := fmt.Sprintf(
		"A new comment was submitted and is awaiting moderation.\r\n"+
			"\r\n"+
			"Insight: %s (/insights/%s)\r\n"+
			"Author: %s\r\n"+
			"\r\n"+
			"%s\r\n",
		data.InsightTitle,
		data.InsightSlug,
		data.Author,
		data.Text,
	)
	return s.SendEmail([]string{to}, subject, body)
}
