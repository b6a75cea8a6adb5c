package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/notifications"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceSweep   Source = "sweep"
	SourceManual  Source = "manual"
)

type ApplyResult struct {
	Donation *models.Donation `json:"donation"`
	// Applied is true when this call changed the donation's state.
	Applied  bool   `json:"applied"`
	Absorbed bool   `json:"absorbed"`
	Note     string `json:"note,omitempty"`
}

// errLostRace aborts a transaction whose compare-and-set found the donation
// already moved by another writer.
var errLostRace = errors.New("donation changed concurrently")

// idempotencyKey identifies one delivery of an outcome for a checkout
// attempt. Failures also carry the raw provider status so a different
// failure on the same reference counts as a new retry.
func idempotencyKey(d *models.Donation, reference string, o payments.Outcome) string {
	key := fmt.Sprintf("%s:%d:%s:%s", d.ID, d.Attempt, reference, o.Result)
	if o.Result == payments.OutcomeFailed {
		key += ":" + o.RawStatus
	}
	return key
}

func lockedDonation(tx *gorm.DB, id uuid.UUID) (*models.Donation, error) {
	var d models.Donation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	return &d, nil
}

// transition moves d from its loaded status with a compare-and-set and
// copies the new values back onto d.
func transition(tx *gorm.DB, d *models.Donation, updates map[string]interface{}) error {
	res := tx.Model(&models.Donation{}).
		Where("id = ? AND status = ?", d.ID, d.Status).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errLostRace
	}
	return tx.First(d, "id = ?", d.ID).Error
}

// retiredReference reports whether ref was the provider reference of an
// earlier attempt that the donor has since retried.
func retiredReference(tx *gorm.DB, donationID uuid.UUID, ref string) (bool, error) {
	var n int64
	err := tx.Model(&models.DonationEvent{}).
		Where("donation_id = ? AND kind = ? AND provider_reference = ?", donationID, models.DonationEventRetried, ref).
		Count(&n).Error
	return n > 0, err
}

func absorbedEvent(d *models.Donation, source Source, outcome payments.Outcome, note string) models.DonationEvent {
	meta, _ := json.Marshal(map[string]string{"note": note})
	ref := outcome.ProviderReference
	return models.DonationEvent{
		DonationID:        d.ID,
		Kind:              models.DonationEventAbsorbed,
		Source:            string(source),
		Outcome:           string(outcome.Result),
		FromStatus:        d.Status,
		ToStatus:          d.Status,
		ProviderReference: &ref,
		RawStatus:         outcome.RawStatus,
		Metadata:          meta,
	}
}

// ApplyOutcome is the single entry point that moves a donation in response
// to a provider signal. Calls for the same donation are serialised; a
// repeated outcome for the same attempt and reference is absorbed.
//
// A completion commits first. Aggregate recomputation runs afterwards from
// outbox rows written in the same transaction, so a failed recompute is
// retried later and never undoes the completion.
func ApplyOutcome(donationID uuid.UUID, outcome payments.Outcome, source Source) (*ApplyResult, error) {
	unlock := lockDonation(donationID)
	result := &ApplyResult{}
	var tasks []models.RecomputeTask

	err := database.DB.Transaction(func(tx *gorm.DB) error {
		d, err := lockedDonation(tx, donationID)
		if err != nil {
			return err
		}
		result.Donation = d
		ref := outcome.ProviderReference

		if d.ProviderReference != nil && ref != "" && *d.ProviderReference != ref {
			result.Absorbed = true
			result.Note = "reference belongs to another attempt"
			return tx.Create(ptr(absorbedEvent(d, source, outcome, result.Note))).Error
		}
		if d.ProviderReference == nil && ref != "" {
			stale, err := retiredReference(tx, d.ID, ref)
			if err != nil {
				return err
			}
			if stale {
				result.Absorbed = true
				result.Note = "reference belongs to another attempt"
				return tx.Create(ptr(absorbedEvent(d, source, outcome, result.Note))).Error
			}
			if err := tx.Model(&models.Donation{}).Where("id = ?", d.ID).Update("provider_reference", ref).Error; err != nil {
				return err
			}
			d.ProviderReference = &ref
		}

		switch {
		case d.IsTerminal():
			result.Absorbed = true
			result.Note = "donation already completed"
			if outcome.Result == payments.OutcomeFailed {
				log.Warn().Str("donation_id", d.ID.String()).Str("source", string(source)).Msg("failure reported for completed donation, ignoring")
			}
			return tx.Create(ptr(absorbedEvent(d, source, outcome, result.Note))).Error

		case outcome.Result == payments.OutcomeStillPending:
			if d.Status != models.DonationStatusPending {
				result.Absorbed = true
				result.Note = "donation is not pending"
				return nil
			}
			return tx.Model(&models.Donation{}).Where("id = ?", d.ID).Update("last_status_update", time.Now()).Error

		case d.Status == models.DonationStatusFailed:
			result.Absorbed = true
			result.Note = "donation already failed"
			if outcome.Result == payments.OutcomeSucceeded {
				result.Note = "success reported for failed donation, needs review"
				log.Error().Str("donation_id", d.ID.String()).Str("reference", ref).Str("source", string(source)).
					Msg("provider reported success for a failed donation, flagged for review")
			}
			return tx.Create(ptr(absorbedEvent(d, source, outcome, result.Note))).Error
		}

		key := idempotencyKey(d, d.Reference(), outcome)
		event := models.DonationEvent{
			DonationID:        d.ID,
			Kind:              models.DonationEventApplied,
			Source:            string(source),
			Outcome:           string(outcome.Result),
			FromStatus:        d.Status,
			ProviderReference: d.ProviderReference,
			RawStatus:         outcome.RawStatus,
			IdempotencyKey:    &key,
		}

		now := time.Now()
		updates := map[string]interface{}{"last_status_update": now}
		switch outcome.Result {
		case payments.OutcomeSucceeded:
			event.ToStatus = models.DonationStatusCompleted
			updates["status"] = models.DonationStatusCompleted
			updates["processed_at"] = now
			updates["failure_reason"] = nil
		case payments.OutcomeFailed:
			retries := d.RetryCount + 1
			updates["retry_count"] = retries
			updates["failure_reason"] = outcome.Reason
			event.ToStatus = models.DonationStatusPending
			if !outcome.Retryable || retries >= config.App.Reconciler.MaxRetries || source == SourceSweep {
				event.ToStatus = models.DonationStatusFailed
				updates["status"] = models.DonationStatusFailed
			}
		default:
			return fmt.Errorf("unknown outcome %q", outcome.Result)
		}

		ins := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&event)
		if ins.Error != nil {
			return ins.Error
		}
		if ins.RowsAffected == 0 {
			result.Absorbed = true
			result.Note = "duplicate delivery"
			return nil
		}

		if err := transition(tx, d, updates); err != nil {
			return err
		}
		result.Applied = true

		if d.Status == models.DonationStatusCompleted {
			tasks = recomputeTasksFor(d, now)
			if len(tasks) > 0 {
				return tx.Create(&tasks).Error
			}
		}
		return nil
	})
	unlock()

	if errors.Is(err, errLostRace) {
		current, getErr := GetDonation(donationID)
		if getErr != nil {
			return nil, getErr
		}
		return &ApplyResult{Donation: current, Absorbed: true, Note: "concurrent transition"}, nil
	}
	if err != nil {
		return nil, err
	}

	d := result.Donation
	logEvent := log.Info()
	if result.Absorbed {
		logEvent = log.Debug()
	}
	logEvent.Str("donation_id", d.ID.String()).
		Str("source", string(source)).
		Str("outcome", string(outcome.Result)).
		Str("provider", d.Provider).
		Str("status", string(d.Status)).
		Bool("absorbed", result.Absorbed).
		Msg("donation outcome reconciled")

	if len(tasks) > 0 {
		runRecomputeTasks(tasks)
	}
	if result.Applied && d.Status == models.DonationStatusFailed {
		notifyDonationFailed(d)
	}
	return result, nil
}

// RecordTransientError counts a provider call that could not be completed.
// Once the retry budget is spent the donation fails with technical_error.
func RecordTransientError(donationID uuid.UUID, cause error, source Source) (*models.Donation, error) {
	unlock := lockDonation(donationID)
	defer unlock()

	var d *models.Donation
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = lockedDonation(tx, donationID)
		if err != nil {
			return err
		}
		if d.Status != models.DonationStatusPending {
			return nil
		}

		retries := d.RetryCount + 1
		updates := map[string]interface{}{"retry_count": retries, "last_status_update": time.Now()}
		to := models.DonationStatusPending
		if retries >= config.App.Reconciler.MaxRetries {
			to = models.DonationStatusFailed
			updates["status"] = to
			updates["failure_reason"] = models.FailureTechnicalError
		}

		meta, _ := json.Marshal(map[string]string{"error": cause.Error()})
		if err := tx.Create(&models.DonationEvent{
			DonationID:        d.ID,
			Kind:              models.DonationEventApplied,
			Source:            string(source),
			Outcome:           "transient_error",
			FromStatus:        d.Status,
			ToStatus:          to,
			ProviderReference: d.ProviderReference,
			Metadata:          meta,
		}).Error; err != nil {
			return err
		}
		return transition(tx, d, updates)
	})
	if errors.Is(err, errLostRace) {
		return GetDonation(donationID)
	}
	if err != nil {
		return nil, err
	}

	log.Warn().Err(cause).Str("donation_id", d.ID.String()).Str("source", string(source)).
		Int("retry_count", d.RetryCount).Str("status", string(d.Status)).Msg("provider call failed for donation")
	return d, nil
}

// failDonation forces a terminal failure that did not come from a provider
// outcome (abandoned checkouts, exhausted retries). from lists the statuses
// the donation may be in.
func failDonation(donationID uuid.UUID, reason models.FailureReason, source Source, from ...models.DonationStatus) (bool, error) {
	unlock := lockDonation(donationID)
	defer unlock()

	var d *models.Donation
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = lockedDonation(tx, donationID)
		if err != nil {
			return err
		}
		allowed := false
		for _, s := range from {
			if d.Status == s {
				allowed = true
			}
		}
		if !allowed || (d.FailureReason != nil && *d.FailureReason == reason) {
			d = nil
			return nil
		}

		if err := tx.Create(&models.DonationEvent{
			DonationID:        d.ID,
			Kind:              models.DonationEventApplied,
			Source:            string(source),
			Outcome:           string(reason),
			FromStatus:        d.Status,
			ToStatus:          models.DonationStatusFailed,
			ProviderReference: d.ProviderReference,
		}).Error; err != nil {
			return err
		}
		return transition(tx, d, map[string]interface{}{
			"status":             models.DonationStatusFailed,
			"failure_reason":     reason,
			"last_status_update": time.Now(),
		})
	})
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	if err != nil || d == nil {
		return false, err
	}
	log.Info().Str("donation_id", d.ID.String()).Str("reason", string(reason)).Msg("donation failed by sweep")
	return true, nil
}

// RetryDonation is the audited user action that moves a failed donation
// back to pending for a fresh checkout attempt.
func RetryDonation(donationID uuid.UUID, actorID uuid.UUID) (*models.Donation, error) {
	unlock := lockDonation(donationID)
	defer unlock()

	var d *models.Donation
	err := database.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		d, err = lockedDonation(tx, donationID)
		if err != nil {
			return err
		}
		if d.DonorID != actorID {
			return ErrForbidden
		}
		if err := checkRetryEligible(d, time.Now()); err != nil {
			return err
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"previous_reference": d.Reference(),
			"previous_retries":   d.RetryCount,
			"attempt":            d.Attempt + 1,
		})
		if err := tx.Create(&models.DonationEvent{
			DonationID: d.ID,
			Kind:       models.DonationEventRetried,
			Source:     string(SourceManual),
			FromStatus: d.Status,
			ToStatus:   models.DonationStatusPending,
			ActorID:    &actorID,
			Metadata:   meta,
			// Outcomes still carrying this reference are absorbed.
			ProviderReference: d.ProviderReference,
		}).Error; err != nil {
			return err
		}

		now := time.Now()
		return transition(tx, d, map[string]interface{}{
			"status":             models.DonationStatusPending,
			"retry_count":        0,
			"attempt":            d.Attempt + 1,
			"failure_reason":     nil,
			"provider_reference": nil,
			"last_status_update": now,
			"attempt_started_at": now,
		})
	})
	if errors.Is(err, errLostRace) {
		return nil, businessError("not_retryable", ErrNotRetryable)
	}
	if err != nil {
		return nil, err
	}
	// The new attempt may be polled straight away.
	if err := KVDelete(pollThrottleKey(d.ID)); err != nil {
		log.Warn().Err(err).Str("donation_id", d.ID.String()).Msg("could not clear poll throttle")
	}
	log.Info().Str("donation_id", d.ID.String()).Int("attempt", d.Attempt).Msg("donation retried by donor")
	return d, nil
}

// RetryEligible reports whether the donor may retry d now.
func RetryEligible(d *models.Donation, now time.Time) bool {
	return checkRetryEligible(d, now) == nil
}

func checkRetryEligible(d *models.Donation, now time.Time) error {
	if d.Status != models.DonationStatusFailed {
		return businessError("not_retryable", ErrNotRetryable)
	}
	if d.Attempt >= config.App.Sweeper.MaxUserRetries {
		return businessError("retry_limit_reached", ErrRetryLimitReached)
	}
	if now.Sub(d.LastStatusUpdate) < config.App.Sweeper.UserRetryCooldown.Duration {
		return businessError("retry_cooldown", ErrRetryCooldown)
	}
	return nil
}

func recomputeTasksFor(d *models.Donation, now time.Time) []models.RecomputeTask {
	tasks := []models.RecomputeTask{{Kind: models.RecomputeCampaign, EntityID: d.CampaignID, Sequence: 0, NextRunAt: now}}
	if d.ChainerID != nil {
		tasks = append(tasks, models.RecomputeTask{Kind: models.RecomputeChainer, EntityID: *d.ChainerID, Sequence: 1, NextRunAt: now})
	}
	return tasks
}

func runRecomputeTask(t *models.RecomputeTask) error {
	switch t.Kind {
	case models.RecomputeCampaign:
		_, err := RecomputeCampaignAmount(t.EntityID)
		return err
	case models.RecomputeChainer:
		_, err := RecomputeChainerStats(t.EntityID)
		return err
	default:
		return fmt.Errorf("unknown recompute kind %q", t.Kind)
	}
}

// runRecomputeTasks executes outbox rows in order and deletes each one that
// succeeds. Failures stay queued for DrainRecomputeOutbox.
func runRecomputeTasks(tasks []models.RecomputeTask) {
	for i := range tasks {
		t := &tasks[i]
		if err := runRecomputeTask(t); err != nil {
			deferRecomputeTask(t, err)
			continue
		}
		if err := database.DB.Delete(&models.RecomputeTask{}, "id = ?", t.ID).Error; err != nil {
			log.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to clear recompute task")
		}
	}
}

func deferRecomputeTask(t *models.RecomputeTask, cause error) {
	attempts := t.Attempts + 1
	backoff := time.Duration(1<<min(attempts, 6)) * 30 * time.Second
	msg := cause.Error()
	err := database.DB.Model(&models.RecomputeTask{}).Where("id = ?", t.ID).Updates(map[string]interface{}{
		"attempts":    attempts,
		"next_run_at": time.Now().Add(backoff),
		"last_error":  msg,
	}).Error
	if err != nil {
		log.Error().Err(err).Str("task_id", t.ID.String()).Msg("failed to reschedule recompute task")
	}
	log.Warn().Err(cause).Str("kind", string(t.Kind)).Str("entity_id", t.EntityID.String()).
		Int("attempts", attempts).Msg("aggregate recompute deferred")
}

// DrainRecomputeOutbox runs due recompute tasks left behind by failed
// post-commit recomputes. It returns how many converged.
func DrainRecomputeOutbox(now time.Time, limit int) (int, error) {
	var tasks []models.RecomputeTask
	err := database.DB.Where("next_run_at <= ?", now).
		Order("created_at ASC").Order("sequence ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return 0, err
	}

	done := 0
	for i := range tasks {
		t := &tasks[i]
		if err := runRecomputeTask(t); err != nil {
			deferRecomputeTask(t, err)
			continue
		}
		if err := database.DB.Delete(&models.RecomputeTask{}, "id = ?", t.ID).Error; err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}

func GetDonation(id uuid.UUID) (*models.Donation, error) {
	var d models.Donation
	if err := database.DB.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}
	return &d, nil
}

func notifyDonationFailed(d *models.Donation) {
	if !notifications.Enabled() {
		return
	}
	var donor models.User
	if err := database.DB.First(&donor, "id = ?", d.DonorID).Error; err != nil {
		return
	}
	reason := models.FailureUnknown
	if d.FailureReason != nil {
		reason = *d.FailureReason
	}
	go notifications.DonationFailed(
		notifications.Recipient{Name: donor.FullName, Email: donor.Email},
		d.Amount.StringFixed(2), d.Currency, reason.Message(), d.Attempt < config.App.Sweeper.MaxUserRetries,
	)
}

func ptr[T any](v T) *T { return &v }
