package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type BankRailConfig struct {
	BaseURL         string
	TokenURL        string
	APIKey          string
	APISecret       string
	AccountNumber   string
	RouteCode       string
	CallbackBaseURL string
	WebhookSecret   string
	Timeout         time.Duration
}

// BankRail drives mobile-money STK pushes for donations and B2C transfers
// for payouts.
type BankRail struct {
	cfg    BankRailConfig
	client *http.Client
}

func NewBankRail(cfg BankRailConfig) *BankRail {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &BankRail{
		cfg:    cfg,
		client: newTokenClient(cfg.APIKey, cfg.APISecret, cfg.TokenURL, cfg.Timeout),
	}
}

func (b *BankRail) Name() string            { return ProviderBankRail }
func (b *BankRail) SignatureHeader() string { return "X-Bank-Rail-Signature" }

var nonNumericRegex = regexp.MustCompile(`[^0-9]`)

// SanitizeMSISDN normalises local 07xx/01xx numbers to the 254 prefix.
func SanitizeMSISDN(phone string) (string, error) {
	sanitized := nonNumericRegex.ReplaceAllString(phone, "")

	if (strings.HasPrefix(sanitized, "07") || strings.HasPrefix(sanitized, "01")) && len(sanitized) == 10 {
		return "254" + sanitized[1:], nil
	}
	if (strings.HasPrefix(sanitized, "7") || strings.HasPrefix(sanitized, "1")) && len(sanitized) == 9 {
		return "254" + sanitized, nil
	}
	if strings.HasPrefix(sanitized, "254") && len(sanitized) == 12 {
		return sanitized, nil
	}
	return "", errors.New("invalid mobile money phone number format")
}

type stkPushResponse struct {
	Header struct {
		StatusCode        string `json:"statusCode"`
		StatusDescription string `json:"statusDescription"`
	} `json:"header"`
	Response struct {
		MerchantRequestID   string `json:"MerchantRequestID"`
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	} `json:"response"`
}

func (b *BankRail) invoiceNumber(donationID uuid.UUID) string {
	return fmt.Sprintf("%s-%s", b.cfg.AccountNumber, donationID)
}

func (b *BankRail) Initiate(ctx context.Context, req InitiateRequest) (*Initiation, error) {
	phone, err := SanitizeMSISDN(req.PayerPhone)
	if err != nil {
		return nil, validationError(b.Name(), "phone", err)
	}
	if !req.Amount.IsPositive() {
		return nil, validationError(b.Name(), "amount", errors.New("amount must be positive"))
	}
	if !req.Amount.IsInteger() {
		return nil, validationError(b.Name(), "amount", ErrFractionalAmount)
	}

	payload := map[string]interface{}{
		"phoneNumber":            phone,
		"amount":                 req.Amount.String(),
		"invoiceNumber":          b.invoiceNumber(req.DonationID),
		"sharedShortCode":        true,
		"callbackUrl":            b.cfg.CallbackBaseURL + "/api/v1/webhooks/" + ProviderBankRail,
		"transactionDescription": req.Description,
	}
	headers := map[string]string{
		"routeCode": b.cfg.RouteCode,
		"operation": "STKPush",
		"messageId": fmt.Sprintf("%s_%d", req.DonationID, time.Now().UnixNano()),
	}

	var resp stkPushResponse
	if err := doJSON(ctx, b.client, b.Name(), http.MethodPost, b.cfg.BaseURL+"/stkpush", headers, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Response.ResponseCode != "0" {
		return nil, &ProviderError{
			Provider: b.Name(),
			Kind:     KindDecline,
			Code:     resp.Response.ResponseCode,
			Err:      errors.New(resp.Response.ResponseDescription),
		}
	}
	return &Initiation{ProviderReference: resp.Response.CheckoutRequestID}, nil
}

type stkQueryResponse struct {
	ResultCode string `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
	// ErrorCode is returned while the push is still being processed.
	ErrorCode string `json:"errorCode"`
}

func (b *BankRail) Poll(ctx context.Context, providerReference string) (Outcome, error) {
	payload := map[string]string{"checkoutRequestID": providerReference}
	headers := map[string]string{"routeCode": b.cfg.RouteCode, "operation": "STKQuery"}

	var resp stkQueryResponse
	if err := doJSON(ctx, b.client, b.Name(), http.MethodPost, b.cfg.BaseURL+"/stkpushquery", headers, payload, &resp); err != nil {
		return Outcome{}, err
	}
	return b.resultOutcome(providerReference, resp.ResultCode), nil
}

func (b *BankRail) resultOutcome(reference, code string) Outcome {
	switch code {
	case "0":
		return Outcome{Result: OutcomeSucceeded, ProviderReference: reference, RawStatus: code}
	case "":
		return Outcome{Result: OutcomeStillPending, ProviderReference: reference}
	default:
		return failedOutcome(bankRailFailures, reference, code)
	}
}

type stkCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			Reference         string `json:"Reference"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (b *BankRail) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if !VerifySignature(b.cfg.WebhookSecret, body, signature) {
		return nil, ErrInvalidSignature
	}

	var payload stkCallback
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, validationError(b.Name(), "payload", err)
	}
	stk := payload.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, validationError(b.Name(), "payload", errors.New("missing CheckoutRequestID"))
	}

	code := strconv.Itoa(stk.ResultCode)
	event := &WebhookEvent{
		// Callbacks carry no event id; one push yields one final result.
		EventID:   stk.CheckoutRequestID + ":" + code,
		EventType: "stk_callback",
		Outcome:   b.resultOutcome(stk.CheckoutRequestID, code),
	}
	ref := strings.TrimPrefix(stk.Reference, b.cfg.AccountNumber+"-")
	if id, err := uuid.Parse(ref); err == nil {
		event.DonationID = &id
	}
	return event, nil
}

type b2cResponse struct {
	ConversationID string `json:"ConversationID"`
	ResponseCode   string `json:"ResponseCode"`
	ResponseDesc   string `json:"ResponseDescription"`
}

func (b *BankRail) Disburse(ctx context.Context, instr PayoutInstruction) (string, error) {
	payload := map[string]interface{}{
		"amount":          instr.Amount.StringFixed(2),
		"currency":        instr.Currency,
		"destination":     instr.Destination,
		"reference":       instr.PayoutID.String(),
		"resultUrl":       b.cfg.CallbackBaseURL + "/api/v1/webhooks/" + ProviderBankRail + "/payouts",
		"remarks":         "payout " + instr.PayoutID.String(),
		"originatorRefID": instr.PayoutID.String(),
	}
	headers := map[string]string{
		"routeCode":       b.cfg.RouteCode,
		"operation":       "B2C",
		"Idempotency-Key": IdempotencyKey(instr.PayoutID, instr.Attempt),
	}

	var resp b2cResponse
	if err := doJSON(ctx, b.client, b.Name(), http.MethodPost, b.cfg.BaseURL+"/b2c", headers, payload, &resp); err != nil {
		return "", err
	}
	if resp.ResponseCode != "0" {
		return "", &ProviderError{Provider: b.Name(), Kind: KindDecline, Code: resp.ResponseCode, Err: errors.New(resp.ResponseDesc)}
	}
	return resp.ConversationID, nil
}

type b2cResult struct {
	Result struct {
		ResultCode     int    `json:"ResultCode"`
		ResultDesc     string `json:"ResultDesc"`
		ConversationID string `json:"ConversationID"`
		TransactionID  string `json:"TransactionID"`
	} `json:"Result"`
}

func (b *BankRail) ParsePayoutWebhook(body []byte, signature string) (*PayoutEvent, error) {
	if !VerifySignature(b.cfg.WebhookSecret, body, signature) {
		return nil, ErrInvalidSignature
	}
	var payload b2cResult
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, validationError(b.Name(), "payload", err)
	}
	if payload.Result.ConversationID == "" {
		return nil, validationError(b.Name(), "payload", errors.New("missing ConversationID"))
	}
	event := &PayoutEvent{
		EventID:           payload.Result.ConversationID + ":" + strconv.Itoa(payload.Result.ResultCode),
		ProviderReference: payload.Result.ConversationID,
		Succeeded:         payload.Result.ResultCode == 0,
	}
	if !event.Succeeded {
		event.FailureReason = payload.Result.ResultDesc
	}
	return event, nil
}
