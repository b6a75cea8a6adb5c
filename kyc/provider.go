package kyc

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/anjiri1684/chain_donate/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidSignature = errors.New("invalid kyc webhook signature")
	ErrMalformedPayload = errors.New("malformed kyc webhook payload")
)

type Inquiry struct {
	ID     string
	Status models.KYCStatus
}

type Event struct {
	InquiryID string
	Status    models.KYCStatus
}

// Provider is the external identity-verification service. Its decisioning
// is opaque; we only create inquiries and react to their completion.
type Provider interface {
	Name() string
	SignatureHeader() string
	CreateInquiry(ctx context.Context, userID uuid.UUID) (*Inquiry, error)
	ParseWebhook(body []byte, signature string) (*Event, error)
}

// MapStatus folds the provider's inquiry vocabulary into ours. Unknown
// values stay in review so they never gate a payout open.
func MapStatus(raw string) models.KYCStatus {
	switch raw {
	case "created", "pending":
		return models.KYCStatusPending
	case "completed", "needs_review", "in_review":
		return models.KYCStatusInReview
	case "approved":
		return models.KYCStatusApproved
	case "declined", "rejected":
		return models.KYCStatusRejected
	case "failed", "expired":
		return models.KYCStatusFailed
	default:
		return models.KYCStatusInReview
	}
}

type Config struct {
	BaseURL       string
	APIKey        string
	TemplateID    string
	WebhookSecret string
	Timeout       time.Duration
}

// HTTPProvider speaks an inquiries API in the JSON:API style used by the
// common hosted verification vendors.
type HTTPProvider struct {
	cfg    Config
	client *http.Client
}

func NewHTTPProvider(cfg Config) *HTTPProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPProvider{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (p *HTTPProvider) Name() string            { return "persona" }
func (p *HTTPProvider) SignatureHeader() string { return "Persona-Signature" }

type inquiryResource struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status      string `json:"status"`
			ReferenceID string `json:"reference-id"`
		} `json:"attributes"`
	} `json:"data"`
}

func (p *HTTPProvider) CreateInquiry(ctx context.Context, userID uuid.UUID) (*Inquiry, error) {
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"attributes": map[string]string{
				"inquiry-template-id": p.cfg.TemplateID,
				"reference-id":        userID.String(),
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/api/v1/inquiries", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", "inquiry-"+userID.String()+"-"+time.Now().UTC().Format("20060102"))

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kyc create inquiry: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Str("body", string(respBody)).Msg("kyc provider rejected inquiry")
		return nil, fmt.Errorf("kyc create inquiry: status %d", resp.StatusCode)
	}

	var res inquiryResource
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("kyc create inquiry: %w", err)
	}
	if res.Data.ID == "" {
		return nil, fmt.Errorf("kyc create inquiry: %w", ErrMalformedPayload)
	}
	return &Inquiry{ID: res.Data.ID, Status: MapStatus(res.Data.Attributes.Status)}, nil
}

type webhookPayload struct {
	Data struct {
		Attributes struct {
			Name    string `json:"name"`
			Payload struct {
				Data struct {
					ID         string `json:"id"`
					Attributes struct {
						Status string `json:"status"`
					} `json:"attributes"`
				} `json:"data"`
			} `json:"payload"`
		} `json:"attributes"`
	} `json:"data"`
}

func (p *HTTPProvider) ParseWebhook(body []byte, signature string) (*Event, error) {
	if p.cfg.WebhookSecret != "" {
		mac := hmac.New(sha256.New, []byte(p.cfg.WebhookSecret))
		mac.Write(body)
		if !hmac.Equal([]byte(hex.EncodeToString(mac.Sum(nil))), []byte(signature)) {
			return nil, ErrInvalidSignature
		}
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	inquiry := payload.Data.Attributes.Payload.Data
	if inquiry.ID == "" {
		return nil, ErrMalformedPayload
	}
	return &Event{InquiryID: inquiry.ID, Status: MapStatus(inquiry.Attributes.Status)}, nil
}
