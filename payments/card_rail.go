package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type CardRailConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	Timeout       time.Duration
}

// CardRail talks to the card processor's orders API.
type CardRail struct {
	cfg    CardRailConfig
	client *http.Client
}

func NewCardRail(cfg CardRailConfig) *CardRail {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &CardRail{
		cfg:    cfg,
		client: newTokenClient(cfg.ClientID, cfg.ClientSecret, cfg.BaseURL+"/v1/oauth2/token", cfg.Timeout),
	}
}

func (c *CardRail) Name() string            { return ProviderCardRail }
func (c *CardRail) SignatureHeader() string { return "X-Card-Rail-Signature" }

type cardOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []cardCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

type cardCapture struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	StatusDetails struct {
		Reason string `json:"reason"`
	} `json:"status_details"`
}

func (c *CardRail) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	if !req.Amount.IsPositive() {
		return nil, validationError(c.Name(), "amount", errors.New("amount must be positive"))
	}
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": req.DonationID.String(),
				"custom_id":    req.DonationID.String(),
				"description":  req.Description,
				"amount": map[string]string{
					"currency_code": req.Currency,
					"value":         req.Amount.StringFixed(2),
				},
			},
		},
	}

	var order cardOrder
	headers := map[string]string{"Idempotency-Key": IdempotencyKey(req.DonationID, req.Attempt)}
	if err := doJSON(ctx, c.client, c.Name(), http.MethodPost, c.cfg.BaseURL+"/v2/checkout/orders", headers, payload, &order); err != nil {
		return nil, err
	}

	init := &Initiation{ProviderReference: order.ID}
	for _, l := range order.Links {
		if l.Rel == "approve" {
			init.RedirectURL = l.Href
		}
	}
	return init, nil
}

func (c *CardRail) Poll(ctx context.Context, providerReference string) (Outcome, error) {
	var order cardOrder
	url := fmt.Sprintf("%s/v2/checkout/orders/%s", c.cfg.BaseURL, providerReference)
	if err := doJSON(ctx, c.client, c.Name(), http.MethodGet, url, nil, nil, &order); err != nil {
		return Outcome{}, err
	}
	return c.orderOutcome(providerReference, &order), nil
}

func (c *CardRail) orderOutcome(reference string, order *cardOrder) Outcome {
	for _, pu := range order.PurchaseUnits {
		if n := len(pu.Payments.Captures); n > 0 {
			capture := pu.Payments.Captures[n-1]
			return c.captureOutcome(reference, capture.Status, capture.StatusDetails.Reason)
		}
	}
	switch order.Status {
	case "COMPLETED":
		return Outcome{Result: OutcomeSucceeded, ProviderReference: reference, RawStatus: order.Status}
	case "VOIDED":
		return failedOutcome(cardRailFailures, reference, "VOIDED")
	default:
		return Outcome{Result: OutcomeStillPending, ProviderReference: reference, RawStatus: order.Status}
	}
}

func (c *CardRail) captureOutcome(reference, status, reason string) Outcome {
	switch status {
	case "COMPLETED":
		return Outcome{Result: OutcomeSucceeded, ProviderReference: reference, RawStatus: status}
	case "DECLINED":
		if reason == "" {
			reason = "DECLINED"
		}
		return failedOutcome(cardRailFailures, reference, reason)
	case "FAILED":
		return failedOutcome(cardRailFailures, reference, "FAILED")
	default:
		return Outcome{Result: OutcomeStillPending, ProviderReference: reference, RawStatus: status}
	}
}

type cardWebhook struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		CustomID          string `json:"custom_id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
		StatusDetails struct {
			Reason string `json:"reason"`
		} `json:"status_details"`
	} `json:"resource"`
}

func (c *CardRail) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if !VerifySignature(c.cfg.WebhookSecret, body, signature) {
		return nil, ErrInvalidSignature
	}

	var payload cardWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, validationError(c.Name(), "payload", err)
	}
	if payload.ID == "" {
		return nil, validationError(c.Name(), "payload", errors.New("missing event id"))
	}

	reference := payload.Resource.SupplementaryData.RelatedIDs.OrderID
	if reference == "" && strings.HasPrefix(payload.EventType, "CHECKOUT.ORDER.") {
		reference = payload.Resource.ID
	}

	event := &WebhookEvent{EventID: payload.ID, EventType: payload.EventType}
	if id, err := uuid.Parse(payload.Resource.CustomID); err == nil {
		event.DonationID = &id
	}

	switch payload.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		event.Outcome = c.captureOutcome(reference, "COMPLETED", "")
	case "PAYMENT.CAPTURE.DECLINED":
		event.Outcome = c.captureOutcome(reference, "DECLINED", payload.Resource.StatusDetails.Reason)
	case "PAYMENT.CAPTURE.PENDING":
		event.Outcome = c.captureOutcome(reference, "PENDING", "")
	case "CHECKOUT.ORDER.VOIDED":
		event.Outcome = failedOutcome(cardRailFailures, reference, "VOIDED")
	default:
		return event, ErrIgnoredEvent
	}
	return event, nil
}
