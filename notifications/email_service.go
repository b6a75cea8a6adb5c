package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"strings"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/rs/zerolog/log"
)

const (
	brevoURL    = "https://api.brevo.com/v3/smtp/email"
	sendTimeout = 10 * time.Second
)

type BrevoService struct {
	APIKey string
	From   contact
	URL    string
	client *http.Client
}

var EmailClient *BrevoService

type contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// Message is one transactional e-mail.
type Message struct {
	To      Recipient
	Subject string
	HTML    string
}

type brevoPayload struct {
	Sender      contact   `json:"sender"`
	To          []contact `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

func InitEmailService(cfg config.EmailSettings) {
	if cfg.BrevoAPIKey == "" || cfg.Sender == "" || cfg.SenderName == "" {
		log.Warn().Msg("email service not configured, notices will be skipped")
		EmailClient = nil
		return
	}

	EmailClient = &BrevoService{
		APIKey: cfg.BrevoAPIKey,
		From:   contact{Name: cfg.SenderName, Email: cfg.Sender},
		URL:    brevoURL,
		client: &http.Client{Timeout: sendTimeout},
	}
	log.Info().Str("sender", cfg.Sender).Msg("email service initialized")
}

// Enabled reports whether notices will actually be delivered. Callers use it
// to skip recipient lookups.
func Enabled() bool {
	return EmailClient != nil
}

func (s *BrevoService) Send(ctx context.Context, msg Message) error {
	addr, err := mail.ParseAddress(msg.To.Email)
	if err != nil {
		return fmt.Errorf("invalid recipient email %q: %w", msg.To.Email, err)
	}
	name := msg.To.Name
	if name == "" {
		name = addr.Address[:strings.Index(addr.Address, "@")]
	}

	body, err := json.Marshal(brevoPayload{
		Sender:      s.From,
		To:          []contact{{Name: name, Email: addr.Address}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("api-key", s.APIKey)
	req.Header.Set("content-type", "application/json")

	client := s.client
	if client == nil {
		client = &http.Client{Timeout: sendTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("brevo returned status %d: %s", resp.StatusCode, detail)
	}
	return nil
}

// SendEmail delivers a notice with its own deadline. Failures are logged;
// notices never fail the operation that triggered them.
func SendEmail(toName, toEmail, subject, htmlContent string) {
	if EmailClient == nil {
		log.Debug().Str("subject", subject).Msg("email client not initialized, skipping email send")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	msg := Message{To: Recipient{Name: toName, Email: toEmail}, Subject: subject, HTML: htmlContent}
	if err := EmailClient.Send(ctx, msg); err != nil {
		log.Error().Err(err).Str("to", toEmail).Str("subject", subject).Msg("failed to send email")
		return
	}
	log.Info().Str("to", toEmail).Str("subject", subject).Msg("email sent")
}
