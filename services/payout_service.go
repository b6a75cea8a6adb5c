package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/notifications"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PayoutAction string

const (
	PayoutActionApprove  PayoutAction = "approve"
	PayoutActionReject   PayoutAction = "reject"
	PayoutActionProcess  PayoutAction = "process"
	PayoutActionComplete PayoutAction = "complete"
	PayoutActionFail     PayoutAction = "fail"
	PayoutActionPay      PayoutAction = "pay"
	PayoutActionRetry    PayoutAction = "retry"
)

// payoutTransitions lists, per payout type, the statuses each action may
// start from. Both payout kinds share one workflow.
var payoutTransitions = map[models.PayoutType]map[PayoutAction][]models.PayoutStatus{
	models.PayoutTypeCampaign: {
		PayoutActionApprove:  {models.PayoutStatusRequested, models.PayoutStatusKYCPending},
		PayoutActionReject:   {models.PayoutStatusRequested, models.PayoutStatusKYCPending},
		PayoutActionProcess:  {models.PayoutStatusApproved},
		PayoutActionComplete: {models.PayoutStatusProcessing},
		PayoutActionFail:     {models.PayoutStatusProcessing},
		PayoutActionRetry:    {models.PayoutStatusFailed},
	},
	models.PayoutTypeCommission: {
		PayoutActionApprove: {models.PayoutStatusPending, models.PayoutStatusKYCPending},
		PayoutActionReject:  {models.PayoutStatusPending, models.PayoutStatusKYCPending, models.PayoutStatusApproved},
		PayoutActionPay:     {models.PayoutStatusApproved},
		PayoutActionFail:    {models.PayoutStatusApproved},
		PayoutActionRetry:   {models.PayoutStatusFailed},
	},
}

// reservedStatuses hold funds against the available balance.
var reservedStatuses = map[models.PayoutType][]models.PayoutStatus{
	models.PayoutTypeCampaign:   {models.PayoutStatusApproved, models.PayoutStatusProcessing, models.PayoutStatusCompleted},
	models.PayoutTypeCommission: {models.PayoutStatusApproved, models.PayoutStatusPaid},
}

func initialPayoutStatus(t models.PayoutType) models.PayoutStatus {
	if t == models.PayoutTypeCommission {
		return models.PayoutStatusPending
	}
	return models.PayoutStatusRequested
}

func checkPayoutAction(p *models.PayoutRequest, action PayoutAction) error {
	actions, ok := payoutTransitions[p.Type]
	if !ok {
		return businessError("invalid_transition", ErrInvalidTransition)
	}
	from, ok := actions[action]
	if !ok {
		return businessError("invalid_transition", fmt.Errorf("%w: %s payouts cannot %s", ErrInvalidTransition, p.Type, action))
	}
	for _, s := range from {
		if p.Status == s {
			return nil
		}
	}
	return businessError("invalid_transition", fmt.Errorf("%w: cannot %s a %s payout", ErrInvalidTransition, action, p.Status))
}

type CreatePayoutInput struct {
	Type        models.PayoutType
	RequesterID uuid.UUID
	// TargetID is the campaign for campaign payouts and the chainer for
	// commission payouts.
	TargetID    uuid.UUID
	Amount      decimal.Decimal
	Destination string
	Notes       string
}

type PayoutActionInput struct {
	Action            PayoutAction
	ActorID           uuid.UUID
	Reason            string
	Notes             string
	ProviderReference string
}

type BulkItemResult struct {
	ID     uuid.UUID           `json:"id"`
	Status models.PayoutStatus `json:"status,omitempty"`
	Error  string              `json:"error,omitempty"`
}

func payoutTarget(p *models.PayoutRequest) uuid.UUID {
	if p.Type == models.PayoutTypeCommission && p.ChainerID != nil {
		return *p.ChainerID
	}
	if p.CampaignID != nil {
		return *p.CampaignID
	}
	return uuid.Nil
}

func balanceKey(t models.PayoutType, target uuid.UUID) string {
	return string(t) + ":" + target.String()
}

func sumPayouts(tx *gorm.DB, t models.PayoutType, target uuid.UUID) (decimal.Decimal, error) {
	column := "campaign_id"
	if t == models.PayoutTypeCommission {
		column = "chainer_id"
	}
	var amounts []decimal.Decimal
	err := tx.Model(&models.PayoutRequest{}).
		Where("type = ? AND "+column+" = ? AND status IN ?", t, target, reservedStatuses[t]).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total, nil
}

// availableBalance re-derives what a payout of type t may still claim from
// target, straight from completed donations rather than stored aggregates.
func availableBalance(tx *gorm.DB, t models.PayoutType, target uuid.UUID) (decimal.Decimal, error) {
	var earned decimal.Decimal
	switch t {
	case models.PayoutTypeCampaign:
		raised, _, err := sumCompleted(tx.Where("campaign_id = ?", target))
		if err != nil {
			return decimal.Zero, err
		}
		earned = raised
	case models.PayoutTypeCommission:
		var chainer models.Chainer
		if err := tx.First(&chainer, "id = ?", target).Error; err != nil {
			return decimal.Zero, err
		}
		raised, _, err := sumCompleted(tx.Where("chainer_id = ?", target))
		if err != nil {
			return decimal.Zero, err
		}
		earned = raised.Mul(chainer.CommissionRate).Round(2)
	default:
		return decimal.Zero, fmt.Errorf("unknown payout type %q", t)
	}

	reserved, err := sumPayouts(tx, t, target)
	if err != nil {
		return decimal.Zero, err
	}
	return earned.Sub(reserved), nil
}

// AvailableBalance is the read-only view of availableBalance.
func AvailableBalance(t models.PayoutType, target uuid.UUID) (decimal.Decimal, error) {
	return availableBalance(database.DB, t, target)
}

func lockPayoutTarget(tx *gorm.DB, t models.PayoutType, target uuid.UUID) error {
	var err error
	if t == models.PayoutTypeCommission {
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&models.Chainer{}, "id = ?", target).Error
	} else {
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&models.Campaign{}, "id = ?", target).Error
	}
	return err
}

func applyFraud(tx *gorm.DB, p *models.PayoutRequest, now time.Time) (FraudAssessment, error) {
	in := FraudInput{Amount: p.Amount, Now: now}

	var requester models.User
	if err := tx.First(&requester, "id = ?", p.RequesterID).Error; err == nil {
		in.AccountCreatedAt = requester.CreatedAt
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return FraudAssessment{}, err
	}

	referrals := tx.Model(&models.Donation{}).Where("status = ?", models.DonationStatusCompleted)
	if p.Type == models.PayoutTypeCommission {
		referrals = referrals.Where("chainer_id = ?", payoutTarget(p))
	} else {
		referrals = referrals.Where("campaign_id = ? AND chainer_id IS NOT NULL", payoutTarget(p))
	}
	if err := referrals.Count(&in.TotalReferrals).Error; err != nil {
		return FraudAssessment{}, err
	}

	recent := tx.Model(&models.PayoutRequest{}).
		Where("requester_id = ? AND requested_at >= ?", p.RequesterID, now.Add(-30*24*time.Hour))
	if p.ID != uuid.Nil {
		recent = recent.Where("id <> ?", p.ID)
	}
	if err := recent.Count(&in.RecentPayoutRequests).Error; err != nil {
		return FraudAssessment{}, err
	}

	a := ScorePayout(in)
	flags, _ := json.Marshal(a.Flags)
	p.FraudScore = a.Score
	p.SuspiciousActivity = a.Suspicious
	p.FraudFlags = flags
	p.FraudModelVersion = a.Version
	return a, nil
}

func fraudUpdates(p *models.PayoutRequest) map[string]interface{} {
	return map[string]interface{}{
		"fraud_score":         p.FraudScore,
		"suspicious_activity": p.SuspiciousActivity,
		"fraud_flags":         p.FraudFlags,
		"fraud_model_version": p.FraudModelVersion,
	}
}

// RequestPayout opens a payout request for the requester's campaign or
// chainer balance.
func RequestPayout(in CreatePayoutInput) (*models.PayoutRequest, error) {
	if !in.Amount.IsPositive() {
		return nil, businessError("invalid_amount", ErrInvalidAmount)
	}

	p := models.PayoutRequest{
		Type:        in.Type,
		RequesterID: in.RequesterID,
		Amount:      in.Amount.Round(2),
		Destination: in.Destination,
		Status:      initialPayoutStatus(in.Type),
	}
	if in.Notes != "" {
		p.Notes = &in.Notes
	}

	switch in.Type {
	case models.PayoutTypeCampaign:
		campaign, err := GetCampaign(in.TargetID)
		if err != nil {
			return nil, err
		}
		if campaign.CreatorID != in.RequesterID {
			return nil, ErrForbidden
		}
		p.CampaignID = &campaign.ID
		p.Currency = campaign.Currency
	case models.PayoutTypeCommission:
		chainer, err := GetChainer(in.TargetID)
		if err != nil {
			return nil, err
		}
		if chainer.UserID != in.RequesterID {
			return nil, ErrForbidden
		}
		campaign, err := GetCampaign(chainer.CampaignID)
		if err != nil {
			return nil, err
		}
		p.ChainerID = &chainer.ID
		p.CampaignID = &campaign.ID
		p.Currency = campaign.Currency
	default:
		return nil, businessError("invalid_payout_type", fmt.Errorf("unknown payout type %q", in.Type))
	}

	fee := p.Amount.Mul(config.App.Payout.FeePercent).Div(decimal.NewFromInt(100)).Round(2)
	p.Fee = fee
	p.NetAmount = p.Amount.Sub(fee)

	unlock := lockPayoutBalance(balanceKey(p.Type, in.TargetID))
	defer unlock()

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		if err := lockPayoutTarget(tx, p.Type, in.TargetID); err != nil {
			return err
		}
		available, err := availableBalance(tx, p.Type, in.TargetID)
		if err != nil {
			return err
		}
		// The fee is drawn from the same balance, so the gross amount is
		// what must fit; the net amount always does when it does.
		if p.Amount.GreaterThan(available) {
			return businessError("insufficient_balance",
				fmt.Errorf("%w: requested %s, available %s", ErrInsufficientBalance, p.Amount.StringFixed(2), available.StringFixed(2)))
		}

		now := time.Now()
		p.RequestedAt = now
		if _, err := applyFraud(tx, &p, now); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&p).Error
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("payout_id", p.ID.String()).Str("type", string(p.Type)).Str("amount", p.Amount.String()).
		Int("fraud_score", p.FraudScore).Bool("suspicious", p.SuspiciousActivity).Msg("payout requested")
	return &p, nil
}

func GetPayout(id uuid.UUID) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	if err := database.DB.First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

func lockedPayout(tx *gorm.DB, id uuid.UUID) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return &p, nil
}

// transitionPayout moves p with a compare-and-set on its loaded status.
func transitionPayout(tx *gorm.DB, p *models.PayoutRequest, to models.PayoutStatus, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	res := tx.Model(&models.PayoutRequest{}).Where("id = ? AND status = ?", p.ID, p.Status).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return businessError("invalid_transition", ErrInvalidTransition)
	}
	return tx.First(p, "id = ?", p.ID).Error
}

// updatePayout runs a single-row payout transition in its own transaction.
func updatePayout(id uuid.UUID, action PayoutAction, apply func(tx *gorm.DB, p *models.PayoutRequest) error) (*models.PayoutRequest, error) {
	var p *models.PayoutRequest
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockedPayout(tx, id)
		if err != nil {
			return err
		}
		if err := checkPayoutAction(p, action); err != nil {
			return err
		}
		return apply(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func actorRef(actor uuid.UUID) *uuid.UUID {
	if actor == uuid.Nil {
		return nil
	}
	return &actor
}

// ApprovePayout runs the KYC gate, then re-derives the available balance
// under the per-target lock before approving. A requester without fresh
// KYC is parked in kyc_pending.
func ApprovePayout(ctx context.Context, id, actor uuid.UUID) (*models.PayoutRequest, error) {
	p, err := GetPayout(id)
	if err != nil {
		return nil, err
	}
	if err := checkPayoutAction(p, PayoutActionApprove); err != nil {
		return nil, err
	}

	verification, cleared, err := EnsureKYC(ctx, p.RequesterID)
	if err != nil {
		return nil, err
	}
	if !cleared {
		p, err = updatePayout(id, PayoutActionApprove, func(tx *gorm.DB, p *models.PayoutRequest) error {
			return transitionPayout(tx, p, models.PayoutStatusKYCPending, map[string]interface{}{
				"kyc_verification_id": verification.ID,
			})
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("payout_id", p.ID.String()).Str("inquiry_id", verification.ExternalInquiryID).Msg("payout waiting on identity verification")
		notifyRequester(p, notifications.VerificationRequired)
		return p, nil
	}

	target := payoutTarget(p)
	unlock := lockPayoutBalance(balanceKey(p.Type, target))
	defer unlock()

	p, err = updatePayout(id, PayoutActionApprove, func(tx *gorm.DB, p *models.PayoutRequest) error {
		if err := lockPayoutTarget(tx, p.Type, target); err != nil {
			return err
		}
		available, err := availableBalance(tx, p.Type, target)
		if err != nil {
			return err
		}
		if p.Amount.GreaterThan(available) {
			return businessError("insufficient_balance",
				fmt.Errorf("%w: payout %s, available %s", ErrInsufficientBalance, p.Amount.StringFixed(2), available.StringFixed(2)))
		}

		now := time.Now()
		if _, err := applyFraud(tx, p, now); err != nil {
			return err
		}
		updates := fraudUpdates(p)
		updates["approver_id"] = actorRef(actor)
		updates["approved_at"] = now
		updates["kyc_verification_id"] = verification.ID
		return transitionPayout(tx, p, models.PayoutStatusApproved, updates)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("payout_id", p.ID.String()).Str("approver_id", actor.String()).Int("fraud_score", p.FraudScore).Msg("payout approved")
	notifyRequester(p, func(to notifications.Recipient) {
		notifications.PayoutApproved(to, p.NetAmount.StringFixed(2), p.Currency)
	})
	return p, nil
}

func RejectPayout(id, actor uuid.UUID, reason string) (*models.PayoutRequest, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < config.App.Payout.MinRejectionLength {
		return nil, businessError("rejection_reason_too_short",
			fmt.Errorf("%w: at least %d characters required", ErrRejectionReasonTooShort, config.App.Payout.MinRejectionLength))
	}

	p, err := updatePayout(id, PayoutActionReject, func(tx *gorm.DB, p *models.PayoutRequest) error {
		return transitionPayout(tx, p, models.PayoutStatusRejected, map[string]interface{}{
			"rejection_reason": reason,
			"approver_id":      actorRef(actor),
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("payout_id", p.ID.String()).Str("actor_id", actor.String()).Msg("payout rejected")
	notifyRequester(p, func(to notifications.Recipient) {
		notifications.PayoutRejected(to, p.Amount.StringFixed(2), p.Currency, reason)
	})
	return p, nil
}

// ProcessPayout moves an approved campaign payout to processing and hands
// it to the disburser. A disbursement error fails the payout.
func ProcessPayout(ctx context.Context, id, actor uuid.UUID) (*models.PayoutRequest, error) {
	disburser, err := payments.GetDisburser()
	if err != nil {
		return nil, businessError("no_disburser", err)
	}

	p, err := updatePayout(id, PayoutActionProcess, func(tx *gorm.DB, p *models.PayoutRequest) error {
		return transitionPayout(tx, p, models.PayoutStatusProcessing, map[string]interface{}{
			"attempts": p.Attempts + 1,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("payout_id", p.ID.String()).Str("actor_id", actor.String()).Int("attempt", p.Attempts).Msg("payout processing")
	return dispatchPayout(ctx, p, disburser)
}

func dispatchPayout(ctx context.Context, p *models.PayoutRequest, disburser payments.Disburser) (*models.PayoutRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, config.App.BankRail.Timeout.Duration)
	defer cancel()

	ref, err := disburser.Disburse(ctx, payments.PayoutInstruction{
		PayoutID:    p.ID,
		Attempt:     p.Attempts,
		Amount:      p.NetAmount,
		Currency:    p.Currency,
		Destination: p.Destination,
	})
	if err != nil {
		log.Error().Err(err).Str("payout_id", p.ID.String()).Str("provider", disburser.Name()).Msg("payout disbursement failed")
		return FailPayout(p.ID, uuid.Nil, err.Error())
	}

	res := database.DB.Model(&models.PayoutRequest{}).
		Where("id = ? AND status = ?", p.ID, models.PayoutStatusProcessing).
		Update("provider_reference", ref)
	if res.Error != nil {
		return nil, res.Error
	}
	p.ProviderReference = &ref
	return p, nil
}

func CompletePayout(id, actor uuid.UUID, reference string) (*models.PayoutRequest, error) {
	p, err := updatePayout(id, PayoutActionComplete, func(tx *gorm.DB, p *models.PayoutRequest) error {
		updates := map[string]interface{}{"processed_at": time.Now()}
		if reference != "" {
			updates["provider_reference"] = reference
		}
		return transitionPayout(tx, p, models.PayoutStatusCompleted, updates)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("payout_id", p.ID.String()).Str("reference", p.Reference()).Msg("payout completed")
	notifyRequester(p, func(to notifications.Recipient) {
		notifications.PayoutCompleted(to, p.NetAmount.StringFixed(2), p.Currency)
	})
	return p, nil
}

func payoutRetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return config.App.Payout.RetryBackoff.Duration * time.Duration(1<<(attempts-1))
}

func FailPayout(id, actor uuid.UUID, reason string) (*models.PayoutRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, businessError("failure_reason_required", errors.New("a failure reason is required"))
	}

	p, err := updatePayout(id, PayoutActionFail, func(tx *gorm.DB, p *models.PayoutRequest) error {
		attempts := p.Attempts
		if attempts == 0 {
			attempts = 1
		}
		next := time.Now().Add(payoutRetryBackoff(attempts))
		return transitionPayout(tx, p, models.PayoutStatusFailed, map[string]interface{}{
			"failure_reason": reason,
			"attempts":       attempts,
			"next_retry_at":  next,
		})
	})
	if err != nil {
		return nil, err
	}
	log.Warn().Str("payout_id", p.ID.String()).Str("reason", reason).Int("attempts", p.Attempts).Msg("payout failed")
	notifyRequester(p, func(to notifications.Recipient) {
		notifications.PayoutFailed(to, p.NetAmount.StringFixed(2), p.Currency, reason)
	})
	return p, nil
}

// PayCommission records an approved commission payout as paid. The chainer
// is flagged so its attribution can no longer be repaired.
func PayCommission(id, actor uuid.UUID, reference string) (*models.PayoutRequest, error) {
	p, err := updatePayout(id, PayoutActionPay, func(tx *gorm.DB, p *models.PayoutRequest) error {
		updates := map[string]interface{}{"processed_at": time.Now()}
		if reference != "" {
			updates["provider_reference"] = reference
		}
		if err := transitionPayout(tx, p, models.PayoutStatusPaid, updates); err != nil {
			return err
		}
		return tx.Model(&models.Chainer{}).Where("id = ?", payoutTarget(p)).Update("commission_paid", true).Error
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("payout_id", p.ID.String()).Str("actor_id", actor.String()).Str("reference", p.Reference()).Msg("commission paid")
	notifyRequester(p, func(to notifications.Recipient) {
		notifications.PayoutCompleted(to, p.NetAmount.StringFixed(2), p.Currency)
	})
	return p, nil
}

// RetryPayout re-enters a failed payout after its backoff, re-checking the
// balance because failed payouts release their reservation.
func RetryPayout(ctx context.Context, id, actor uuid.UUID) (*models.PayoutRequest, error) {
	p, err := GetPayout(id)
	if err != nil {
		return nil, err
	}
	if err := checkPayoutAction(p, PayoutActionRetry); err != nil {
		return nil, err
	}

	var disburser payments.Disburser
	if p.Type == models.PayoutTypeCampaign {
		if disburser, err = payments.GetDisburser(); err != nil {
			return nil, businessError("no_disburser", err)
		}
	}

	target := payoutTarget(p)
	unlock := lockPayoutBalance(balanceKey(p.Type, target))
	p, err = updatePayout(id, PayoutActionRetry, func(tx *gorm.DB, p *models.PayoutRequest) error {
		if p.Attempts >= config.App.Payout.MaxAttempts {
			return businessError("payout_retry_limit", ErrPayoutRetryLimit)
		}
		if p.NextRetryAt != nil && time.Now().Before(*p.NextRetryAt) {
			return businessError("payout_retry_too_soon",
				fmt.Errorf("%w: next retry at %s", ErrPayoutRetryTooSoon, p.NextRetryAt.Format(time.RFC3339)))
		}
		if err := lockPayoutTarget(tx, p.Type, target); err != nil {
			return err
		}
		available, err := availableBalance(tx, p.Type, target)
		if err != nil {
			return err
		}
		if p.Amount.GreaterThan(available) {
			return businessError("insufficient_balance", ErrInsufficientBalance)
		}

		to := models.PayoutStatusApproved
		if p.Type == models.PayoutTypeCampaign {
			to = models.PayoutStatusProcessing
		}
		return transitionPayout(tx, p, to, map[string]interface{}{
			"attempts":       p.Attempts + 1,
			"failure_reason": nil,
			"next_retry_at":  nil,
		})
	})
	unlock()
	if err != nil {
		return nil, err
	}

	log.Info().Str("payout_id", p.ID.String()).Str("actor_id", actor.String()).Int("attempt", p.Attempts).Msg("payout retried")
	if disburser != nil {
		return dispatchPayout(ctx, p, disburser)
	}
	return p, nil
}

// ApplyPayoutAction dispatches one PATCH action to the workflow.
func ApplyPayoutAction(ctx context.Context, id uuid.UUID, in PayoutActionInput) (*models.PayoutRequest, error) {
	var (
		p   *models.PayoutRequest
		err error
	)
	switch in.Action {
	case PayoutActionApprove:
		p, err = ApprovePayout(ctx, id, in.ActorID)
	case PayoutActionReject:
		p, err = RejectPayout(id, in.ActorID, in.Reason)
	case PayoutActionProcess:
		p, err = ProcessPayout(ctx, id, in.ActorID)
	case PayoutActionComplete:
		p, err = CompletePayout(id, in.ActorID, in.ProviderReference)
	case PayoutActionFail:
		p, err = FailPayout(id, in.ActorID, in.Reason)
	case PayoutActionPay:
		p, err = PayCommission(id, in.ActorID, in.ProviderReference)
	case PayoutActionRetry:
		p, err = RetryPayout(ctx, id, in.ActorID)
	default:
		return nil, businessError("unknown_action", fmt.Errorf("%w: %q", ErrUnknownAction, in.Action))
	}
	if err != nil {
		return nil, err
	}

	if in.Notes != "" {
		if err := database.DB.Model(&models.PayoutRequest{}).Where("id = ?", p.ID).Update("notes", in.Notes).Error; err != nil {
			return nil, err
		}
		p.Notes = &in.Notes
	}
	return p, nil
}

// BulkPayoutAction applies the same action to each id independently; one
// failing item never stops the others.
func BulkPayoutAction(ctx context.Context, ids []uuid.UUID, in PayoutActionInput) []BulkItemResult {
	results := make([]BulkItemResult, 0, len(ids))
	for _, id := range ids {
		p, err := ApplyPayoutAction(ctx, id, in)
		if err != nil {
			results = append(results, BulkItemResult{ID: id, Error: err.Error()})
			continue
		}
		results = append(results, BulkItemResult{ID: id, Status: p.Status})
	}
	return results
}

// HandlePayoutConfirmation applies a disburser callback. Confirmations for
// payouts no longer processing are ignored, which makes redelivery safe.
func HandlePayoutConfirmation(ev *payments.PayoutEvent) (*models.PayoutRequest, error) {
	var p models.PayoutRequest
	err := database.DB.Where("provider_reference = ? AND type = ?", ev.ProviderReference, models.PayoutTypeCampaign).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	if p.Status != models.PayoutStatusProcessing {
		log.Debug().Str("payout_id", p.ID.String()).Str("status", string(p.Status)).Msg("payout confirmation absorbed")
		return &p, nil
	}
	if ev.Succeeded {
		return CompletePayout(p.ID, uuid.Nil, ev.ProviderReference)
	}
	reason := ev.FailureReason
	if reason == "" {
		reason = "payout rejected by provider"
	}
	return FailPayout(p.ID, uuid.Nil, reason)
}

// RetryDuePayouts re-dispatches failed campaign payouts whose backoff has
// elapsed and that still have attempts left.
func RetryDuePayouts(ctx context.Context, now time.Time) (int, error) {
	var ids []uuid.UUID
	err := database.DB.Model(&models.PayoutRequest{}).
		Where("type = ? AND status = ? AND attempts < ? AND next_retry_at <= ?",
			models.PayoutTypeCampaign, models.PayoutStatusFailed, config.App.Payout.MaxAttempts, now).
		Limit(config.App.Sweeper.BatchSize).
		Pluck("id", &ids).Error
	if err != nil {
		return 0, err
	}

	retried := 0
	for _, id := range ids {
		if _, err := RetryPayout(ctx, id, uuid.Nil); err != nil {
			log.Warn().Err(err).Str("payout_id", id.String()).Msg("payout retry skipped")
			continue
		}
		retried++
	}
	return retried, nil
}

func notifyRequester(p *models.PayoutRequest, send func(notifications.Recipient)) {
	if !notifications.Enabled() {
		return
	}
	var requester models.User
	if err := database.DB.First(&requester, "id = ?", p.RequesterID).Error; err != nil {
		return
	}
	go send(notifications.Recipient{Name: requester.FullName, Email: requester.Email})
}
