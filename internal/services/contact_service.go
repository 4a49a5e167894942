package services

import (
	"context"
	"fmt"

	"github.com/gridbill/backend/internal/notify"
)

// ContactRequest represents the public contact form
// @Description Contact form submission
type ContactRequest struct {
	Name    string `json:"name" validate:"required,max=120" example:"Asha Rao"`
	Email   string `json:"email" validate:"required,email" example:"asha@example.com"`
	Message string `json:"message" validate:"required,max=4000" example:"Please call me about onboarding."`
}

type ContactService struct {
	notifier *notify.Notifier
}

func NewContactService(notifier *notify.Notifier) *ContactService {
	return &ContactService{notifier: notifier}
}

// Send queues the message for the support inbox.
func (s *ContactService) Send(ctx context.Context, req ContactRequest) error {
	err := s.notifier.SendEmail(ctx, notify.EmailMessage{
		ReplyTo: req.Email,
		Subject: "Contact form: " + req.Name,
		Body:    fmt.Sprintf("From: %s <%s>\n\n%s", req.Name, req.Email, req.Message),
	})
	if err != nil {
		return fmt.Errorf("queue contact email: %w", err)
	}
	return nil
}
