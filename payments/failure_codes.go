package payments

import "github.com/anjiri1684/chain_donate/models"

type failureMapping struct {
	reason    models.FailureReason
	retryable bool
}

// Card-rail decline reasons as reported in capture status details.
var cardRailFailures = map[string]failureMapping{
	"DECLINED":              {models.FailureCardDeclined, false},
	"DECLINED_BY_RISK":      {models.FailureCardDeclined, false},
	"CARD_DECLINED":         {models.FailureCardDeclined, false},
	"INSUFFICIENT_FUNDS":    {models.FailureInsufficientFunds, false},
	"CARD_EXPIRED":          {models.FailureExpiredCard, false},
	"INVALID_ACCOUNT":       {models.FailureInvalidAccount, false},
	"VOIDED":                {models.FailureCancelledByUser, false},
	"PAYER_CANCELLED":       {models.FailureCancelledByUser, false},
	"EXPIRED":               {models.FailureTimeout, true},
	"PROCESSOR_UNAVAILABLE": {models.FailureTechnicalError, true},
	"FAILED":                {models.FailureTechnicalError, true},
}

// Bank-rail (mobile money STK) result codes.
var bankRailFailures = map[string]failureMapping{
	"1":    {models.FailureInsufficientFunds, false},
	"1032": {models.FailureCancelledByUser, false},
	"2001": {models.FailureInvalidAccount, false},
	"1037": {models.FailureTimeout, true},
	"1019": {models.FailureTimeout, true},
	"1001": {models.FailureTechnicalError, true},
	"1025": {models.FailureTechnicalError, true},
	"9999": {models.FailureTechnicalError, true},
}

func mapFailure(table map[string]failureMapping, raw string) (models.FailureReason, bool) {
	if m, ok := table[raw]; ok {
		return m.reason, m.retryable
	}
	return models.FailureUnknown, true
}

func failedOutcome(table map[string]failureMapping, reference, raw string) Outcome {
	reason, retryable := mapFailure(table, raw)
	return Outcome{
		Result:            OutcomeFailed,
		ProviderReference: reference,
		RawStatus:         raw,
		Reason:            reason,
		Retryable:         retryable,
	}
}
