package payments

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anjiri1684/chain_donate/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	ProviderCardRail = "card_rail"
	ProviderBankRail = "bank_rail"
)

type OutcomeResult string

const (
	OutcomeSucceeded    OutcomeResult = "succeeded"
	OutcomeFailed       OutcomeResult = "failed"
	OutcomeStillPending OutcomeResult = "still_pending"
)

// Outcome is the provider-neutral result of a webhook or poll. Reason and
// Retryable are only meaningful when Result is OutcomeFailed.
type Outcome struct {
	Result            OutcomeResult
	ProviderReference string
	RawStatus         string
	Reason            models.FailureReason
	Retryable         bool
}

type InitiateRequest struct {
	DonationID uuid.UUID
	// Attempt is the donation's checkout attempt; each one is a distinct
	// charge at the provider.
	Attempt     int
	Amount      decimal.Decimal
	Currency    string
	PayerPhone  string
	Description string
}

type Initiation struct {
	ProviderReference string
	// RedirectURL is where the donor approves a card-rail charge.
	RedirectURL string
}

// WebhookEvent is a parsed donation webhook. DonationID is set when the
// provider echoes our id back, otherwise lookup goes by reference.
type WebhookEvent struct {
	EventID    string
	EventType  string
	DonationID *uuid.UUID
	Outcome    Outcome
}

type PayoutInstruction struct {
	PayoutID    uuid.UUID
	Attempt     int
	Amount      decimal.Decimal
	Currency    string
	Destination string
}

type PayoutEvent struct {
	EventID           string
	ProviderReference string
	Succeeded         bool
	FailureReason     string
}

// Adapter turns one processor's vocabulary into Outcome values.
type Adapter interface {
	Name() string
	SignatureHeader() string
	Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error)
	Poll(ctx context.Context, providerReference string) (Outcome, error)
	ParseWebhook(body []byte, signature string) (*WebhookEvent, error)
}

// Disburser sends money out and reports payout confirmations.
type Disburser interface {
	Name() string
	SignatureHeader() string
	Disburse(ctx context.Context, instr PayoutInstruction) (string, error)
	ParsePayoutWebhook(body []byte, signature string) (*PayoutEvent, error)
}

var (
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrNoDisburser     = errors.New("no payout provider configured")
	// ErrIgnoredEvent marks webhook events that carry no donation outcome.
	ErrIgnoredEvent = errors.New("webhook event ignored")
)

var (
	registryMu sync.RWMutex
	adapters   = map[string]Adapter{}
	disburser  Disburser
)

func Register(a Adapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	adapters[a.Name()] = a
}

func Get(name string) (Adapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return a, nil
}

func SetDisburser(d Disburser) {
	registryMu.Lock()
	defer registryMu.Unlock()
	disburser = d
}

func GetDisburser() (Disburser, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if disburser == nil {
		return nil, ErrNoDisburser
	}
	return disburser, nil
}

// Reset clears the registry. Used by tests that install fakes.
func Reset() {
	registryMu.Lock()
	defer registryMu.Unlock()
	adapters = map[string]Adapter{}
	disburser = nil
}

// IdempotencyKey scopes a provider idempotency key to one attempt so a
// retry is never replayed as the original request.
func IdempotencyKey(id uuid.UUID, attempt int) string {
	return fmt.Sprintf("%s:%d", id, attempt)
}
