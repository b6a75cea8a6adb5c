package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/database/dbtest"
	"github.com/anjiri1684/chain_donate/kyc"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

const testProvider = "test_rail"

func setup(t *testing.T) {
	t.Helper()
	dbtest.Use(t)
	config.App = config.Defaults()
	payments.Reset()
	SetKYCProvider(nil)
	SetPayloadArchiver(nil)
	t.Cleanup(func() {
		payments.Reset()
		SetKYCProvider(nil)
		SetPayloadArchiver(nil)
		config.App = config.Defaults()
	})
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// fakeAdapter is a scripted payment provider.
type fakeAdapter struct {
	mu          sync.Mutex
	pollOutcome payments.Outcome
	pollErr     error
	polls       int
	initErr     error
	initiated   []uuid.UUID
}

func (f *fakeAdapter) Name() string            { return testProvider }
func (f *fakeAdapter) SignatureHeader() string { return "X-Test-Signature" }

func (f *fakeAdapter) Initiate(ctx context.Context, req payments.InitiateRequest) (*payments.Initiation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.initErr != nil {
		return nil, f.initErr
	}
	f.initiated = append(f.initiated, req.DonationID)
	return &payments.Initiation{ProviderReference: "ref-" + req.DonationID.String()[:8] + "-" + time.Now().Format("150405.000000")}, nil
}

func (f *fakeAdapter) Poll(ctx context.Context, ref string) (payments.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.pollErr != nil {
		return payments.Outcome{}, f.pollErr
	}
	o := f.pollOutcome
	o.ProviderReference = ref
	return o, nil
}

func (f *fakeAdapter) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakeWebhook struct {
	EventID    string `json:"event_id"`
	DonationID string `json:"donation_id"`
	Reference  string `json:"reference"`
	Result     string `json:"result"`
	Raw        string `json:"raw"`
	Reason     string `json:"reason"`
	Retryable  bool   `json:"retryable"`
}

func (f *fakeAdapter) ParseWebhook(body []byte, signature string) (*payments.WebhookEvent, error) {
	if signature != "good" {
		return nil, payments.ErrInvalidSignature
	}
	var w fakeWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, err
	}
	ev := &payments.WebhookEvent{
		EventID:   w.EventID,
		EventType: "test." + w.Result,
		Outcome: payments.Outcome{
			Result:            payments.OutcomeResult(w.Result),
			ProviderReference: w.Reference,
			RawStatus:         w.Raw,
			Reason:            models.FailureReason(w.Reason),
			Retryable:         w.Retryable,
		},
	}
	if id, err := uuid.Parse(w.DonationID); err == nil {
		ev.DonationID = &id
	}
	if w.Result == "" {
		return ev, payments.ErrIgnoredEvent
	}
	return ev, nil
}

func installAdapter(t *testing.T) *fakeAdapter {
	t.Helper()
	a := &fakeAdapter{pollOutcome: payments.Outcome{Result: payments.OutcomeStillPending}}
	payments.Register(a)
	return a
}

type fakeDisburser struct {
	mu    sync.Mutex
	calls int
	keys  []string
	err   error
}

func (f *fakeDisburser) Name() string            { return testProvider }
func (f *fakeDisburser) SignatureHeader() string { return "X-Test-Signature" }

func (f *fakeDisburser) Disburse(ctx context.Context, instr payments.PayoutInstruction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.keys = append(f.keys, payments.IdempotencyKey(instr.PayoutID, instr.Attempt))
	if f.err != nil {
		return "", f.err
	}
	return "conv-" + instr.PayoutID.String(), nil
}

func (f *fakeDisburser) ParsePayoutWebhook(body []byte, signature string) (*payments.PayoutEvent, error) {
	var ev payments.PayoutEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

type fakeKYC struct {
	mu        sync.Mutex
	created   int
	createErr error
}

func (f *fakeKYC) Name() string            { return "fake_kyc" }
func (f *fakeKYC) SignatureHeader() string { return "X-KYC-Signature" }

func (f *fakeKYC) CreateInquiry(ctx context.Context, userID uuid.UUID) (*kyc.Inquiry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &kyc.Inquiry{ID: "inq_" + uuid.NewString(), Status: models.KYCStatusPending}, nil
}

func (f *fakeKYC) ParseWebhook(body []byte, signature string) (*kyc.Event, error) {
	if signature != "good" {
		return nil, kyc.ErrInvalidSignature
	}
	var ev struct {
		InquiryID string `json:"inquiry_id"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, errors.Join(kyc.ErrMalformedPayload, err)
	}
	return &kyc.Event{InquiryID: ev.InquiryID, Status: kyc.MapStatus(ev.Status)}, nil
}

func (f *fakeKYC) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func mustCreate(t *testing.T, v interface{}) {
	t.Helper()
	if err := database.DB.Omit(clause.Associations).Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func newUser(t *testing.T, createdAt time.Time) models.User {
	t.Helper()
	u := models.User{FullName: "Test User", Email: uuid.NewString() + "@example.com", CreatedAt: createdAt}
	mustCreate(t, &u)
	return u
}

func newCampaign(t *testing.T, creatorID uuid.UUID, goal string) models.Campaign {
	t.Helper()
	c := models.Campaign{
		CreatorID:     creatorID,
		Title:         "Clean water",
		GoalAmount:    dec(goal),
		CurrentAmount: decimal.Zero,
		Currency:      "NGN",
		Status:        models.CampaignStatusActive,
	}
	mustCreate(t, &c)
	return c
}

func newChainer(t *testing.T, userID, campaignID uuid.UUID, code string) models.Chainer {
	t.Helper()
	c := models.Chainer{
		UserID:           userID,
		CampaignID:       campaignID,
		ReferralCode:     code,
		TotalRaised:      decimal.Zero,
		CommissionEarned: decimal.Zero,
		CommissionRate:   dec("0.10"),
		Status:           models.ChainerStatusActive,
	}
	mustCreate(t, &c)
	return c
}

type donationOpt func(*models.Donation)

func withChainer(c models.Chainer) donationOpt {
	return func(d *models.Donation) {
		d.ChainerID = &c.ID
		code := c.ReferralCode
		d.ReferralCode = &code
	}
}

func withReference(ref string) donationOpt {
	return func(d *models.Donation) { d.ProviderReference = &ref }
}

func withStatus(s models.DonationStatus) donationOpt {
	return func(d *models.Donation) {
		d.Status = s
		if s == models.DonationStatusCompleted {
			now := time.Now()
			d.ProcessedAt = &now
		}
	}
}

func startedAgo(age time.Duration) donationOpt {
	return func(d *models.Donation) {
		d.AttemptStartedAt = time.Now().Add(-age)
		d.LastStatusUpdate = time.Now().Add(-age)
	}
}

func newDonation(t *testing.T, campaign models.Campaign, amount string, opts ...donationOpt) models.Donation {
	t.Helper()
	now := time.Now()
	d := models.Donation{
		CampaignID:       campaign.ID,
		DonorID:          uuid.New(),
		Amount:           dec(amount),
		Currency:         campaign.Currency,
		Provider:         testProvider,
		Status:           models.DonationStatusPending,
		LastStatusUpdate: now,
		AttemptStartedAt: now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	mustCreate(t, &d)
	return d
}

func reloadDonation(t *testing.T, id uuid.UUID) models.Donation {
	t.Helper()
	d, err := GetDonation(id)
	if err != nil {
		t.Fatalf("reload donation: %v", err)
	}
	return *d
}

func reloadCampaign(t *testing.T, id uuid.UUID) models.Campaign {
	t.Helper()
	c, err := GetCampaign(id)
	if err != nil {
		t.Fatalf("reload campaign: %v", err)
	}
	return *c
}

func succeeded(ref string) payments.Outcome {
	return payments.Outcome{Result: payments.OutcomeSucceeded, ProviderReference: ref, RawStatus: "COMPLETED"}
}

func failed(ref, raw string, reason models.FailureReason, retryable bool) payments.Outcome {
	return payments.Outcome{Result: payments.OutcomeFailed, ProviderReference: ref, RawStatus: raw, Reason: reason, Retryable: retryable}
}

func countEvents(t *testing.T, donationID uuid.UUID, kind models.DonationEventKind) int64 {
	t.Helper()
	var n int64
	if err := database.DB.Model(&models.DonationEvent{}).Where("donation_id = ? AND kind = ?", donationID, kind).Count(&n).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}
