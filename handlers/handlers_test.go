package handlers_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/database/dbtest"
	"github.com/anjiri1684/chain_donate/models"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/anjiri1684/chain_donate/routes"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"
)

const jwtSecret = "handler-secret"

// cardRail is a scripted stand-in for the card processor.
type cardRail struct{ refs int }

func (f *cardRail) Name() string            { return payments.ProviderCardRail }
func (f *cardRail) SignatureHeader() string { return "X-Card-Rail-Signature" }

func (f *cardRail) Initiate(ctx context.Context, req payments.InitiateRequest) (*payments.Initiation, error) {
	f.refs++
	return &payments.Initiation{
		ProviderReference: "ORD-" + req.DonationID.String(),
		RedirectURL:       "https://pay.example.test/approve",
	}, nil
}

func (f *cardRail) Poll(ctx context.Context, ref string) (payments.Outcome, error) {
	return payments.Outcome{Result: payments.OutcomeStillPending, ProviderReference: ref}, nil
}

func (f *cardRail) ParseWebhook(body []byte, signature string) (*payments.WebhookEvent, error) {
	if signature != "good" {
		return nil, payments.ErrInvalidSignature
	}
	var w struct {
		EventID   string `json:"event_id"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, err
	}
	return &payments.WebhookEvent{
		EventID:   w.EventID,
		EventType: "order.captured",
		Outcome: payments.Outcome{
			Result:            payments.OutcomeSucceeded,
			ProviderReference: w.Reference,
			RawStatus:         "COMPLETED",
		},
	}, nil
}

type harness struct {
	t   *testing.T
	app *fiber.App
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dbtest.Use(t)
	s := config.Defaults()
	s.Auth.JWTSecret = jwtSecret
	s.Auth.CronSecret = "cron-token"
	config.App = s
	payments.Reset()
	payments.Register(&cardRail{})
	t.Cleanup(func() {
		payments.Reset()
		config.App = config.Defaults()
	})

	app := fiber.New()
	routes.PublicRoutes(app)
	routes.DonationRoutes(app)
	routes.PayoutRoutes(app)
	routes.WebhookRoutes(app)
	routes.AdminRoutes(app)
	routes.CronRoutes(app)
	return &harness{t: t, app: app}
}

func (h *harness) token(userID uuid.UUID, role string) string {
	h.t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID.String(),
		"role":    role,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(jwtSecret))
	if err != nil {
		h.t.Fatalf("sign token: %v", err)
	}
	return s
}

func (h *harness) do(method, path, body string, headers map[string]string) (int, map[string]interface{}) {
	h.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := h.app.Test(req, -1)
	if err != nil {
		h.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]interface{}{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func create(t *testing.T, v interface{}) {
	t.Helper()
	if err := database.DB.Omit(clause.Associations).Create(v).Error; err != nil {
		t.Fatalf("create %T: %v", v, err)
	}
}

func decEqual(v interface{}, want string) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	got, err := decimal.NewFromString(s)
	return err == nil && got.Equal(decimal.RequireFromString(want))
}

func seedCampaign(t *testing.T) (models.User, models.Campaign) {
	t.Helper()
	creator := models.User{FullName: "Creator", Email: uuid.NewString() + "@example.com"}
	create(t, &creator)
	campaign := models.Campaign{
		CreatorID:     creator.ID,
		Title:         "School roof",
		GoalAmount:    decimal.NewFromInt(1000),
		CurrentAmount: decimal.Zero,
		Currency:      "NGN",
		Status:        models.CampaignStatusActive,
	}
	create(t, &campaign)
	return creator, campaign
}

func TestCampaignIsPublic(t *testing.T) {
	h := newHarness(t)
	_, campaign := seedCampaign(t)

	status, body := h.do("GET", "/api/v1/campaigns/"+campaign.ID.String(), "", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, body %v", status, body)
	}
	if !decEqual(body["available_balance"], "0") {
		t.Errorf("available_balance = %v", body["available_balance"])
	}

	status, _ = h.do("GET", "/api/v1/campaigns/"+uuid.NewString(), "", nil)
	if status != fiber.StatusNotFound {
		t.Errorf("unknown campaign status = %d", status)
	}
	status, _ = h.do("GET", "/api/v1/campaigns/not-a-uuid", "", nil)
	if status != fiber.StatusBadRequest {
		t.Errorf("bad id status = %d", status)
	}
}

func TestDonationLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)
	_, campaign := seedCampaign(t)
	donor := uuid.New()
	auth := bearer(h.token(donor, "donor"))

	status, _ := h.do("POST", "/api/v1/donations", `{}`, nil)
	if status != fiber.StatusBadRequest {
		t.Fatalf("missing token status = %d", status)
	}

	status, body := h.do("POST", "/api/v1/donations", `{"campaign_id":"`+campaign.ID.String()+`","provider":"paypal","amount":"10"}`, auth)
	if status != fiber.StatusBadRequest {
		t.Fatalf("bad provider status = %d, body %v", status, body)
	}

	status, body = h.do("POST", "/api/v1/donations", `{"campaign_id":"`+campaign.ID.String()+`","provider":"card_rail","amount":"-5"}`, auth)
	if status != fiber.StatusUnprocessableEntity || body["code"] != "invalid_amount" {
		t.Fatalf("negative amount: %d %v", status, body)
	}

	status, body = h.do("POST", "/api/v1/donations", `{"campaign_id":"`+campaign.ID.String()+`","provider":"card_rail","amount":"100"}`, auth)
	if status != fiber.StatusCreated {
		t.Fatalf("create status = %d, body %v", status, body)
	}
	if body["status"] != string(models.DonationStatusPending) || body["redirect_url"] == nil {
		t.Fatalf("unexpected donation body: %v", body)
	}
	id := body["id"].(string)
	ref := body["provider_reference"].(string)

	status, _ = h.do("GET", "/api/v1/donations/"+id, "", bearer(h.token(uuid.New(), "donor")))
	if status != fiber.StatusForbidden {
		t.Errorf("stranger status = %d", status)
	}
	status, _ = h.do("GET", "/api/v1/donations/"+id, "", bearer(h.token(uuid.New(), "admin")))
	if status != fiber.StatusOK {
		t.Errorf("admin status = %d", status)
	}

	hook := `{"event_id":"evt-1","reference":"` + ref + `"}`
	status, _ = h.do("POST", "/api/v1/webhooks/card_rail", hook, map[string]string{"X-Card-Rail-Signature": "bad"})
	if status != fiber.StatusUnauthorized {
		t.Fatalf("bad signature status = %d", status)
	}
	status, body = h.do("POST", "/api/v1/webhooks/card_rail", hook, map[string]string{"X-Card-Rail-Signature": "good"})
	if status != fiber.StatusOK || body["duplicate"] != false {
		t.Fatalf("webhook: %d %v", status, body)
	}
	status, body = h.do("POST", "/api/v1/webhooks/card_rail", hook, map[string]string{"X-Card-Rail-Signature": "good"})
	if status != fiber.StatusOK || body["duplicate"] != true {
		t.Fatalf("redelivery: %d %v", status, body)
	}
	status, _ = h.do("POST", "/api/v1/webhooks/paypal", hook, nil)
	if status != fiber.StatusNotFound {
		t.Errorf("unknown provider status = %d", status)
	}

	status, body = h.do("GET", "/api/v1/donations/"+id+"/status", "", auth)
	if status != fiber.StatusOK || body["status"] != string(models.DonationStatusCompleted) {
		t.Fatalf("status check: %d %v", status, body)
	}
	if body["can_retry"] != false {
		t.Errorf("completed donation offered a retry")
	}

	status, body = h.do("POST", "/api/v1/donations/"+id+"/retry", `{}`, auth)
	if status != fiber.StatusUnprocessableEntity {
		t.Errorf("retry of completed donation: %d %v", status, body)
	}

	status, body = h.do("GET", "/api/v1/campaigns/"+campaign.ID.String(), "", nil)
	if status != fiber.StatusOK || !decEqual(body["current_amount"], "100") {
		t.Errorf("campaign after webhook: %d %v", status, body)
	}
}

func TestJoinAndChainerStats(t *testing.T) {
	h := newHarness(t)
	_, campaign := seedCampaign(t)
	member := uuid.New()

	status, body := h.do("POST", "/api/v1/campaigns/"+campaign.ID.String()+"/join", "", bearer(h.token(member, "donor")))
	if status != fiber.StatusCreated {
		t.Fatalf("join: %d %v", status, body)
	}
	chainerID := body["id"].(string)

	status, _ = h.do("GET", "/api/v1/chainers/"+chainerID+"/stats", "", bearer(h.token(uuid.New(), "donor")))
	if status != fiber.StatusForbidden {
		t.Errorf("stranger stats status = %d", status)
	}
	status, body = h.do("GET", "/api/v1/chainers/"+chainerID+"/stats", "", bearer(h.token(member, "donor")))
	if status != fiber.StatusOK || !decEqual(body["available_commission"], "0") {
		t.Errorf("own stats: %d %v", status, body)
	}
}

func TestPayoutEndpoints(t *testing.T) {
	h := newHarness(t)
	creator, campaign := seedCampaign(t)
	auth := bearer(h.token(creator.ID, "donor"))

	status, _ := h.do("POST", "/api/v1/payouts", `{"type":"bonus","target_id":"`+campaign.ID.String()+`","amount":"10","destination":"254700000000"}`, auth)
	if status != fiber.StatusBadRequest {
		t.Errorf("bad type status = %d", status)
	}

	status, body := h.do("POST", "/api/v1/payouts", `{"type":"campaign","target_id":"`+campaign.ID.String()+`","amount":"50","destination":"254700000000"}`, auth)
	if status != fiber.StatusUnprocessableEntity || body["code"] != "insufficient_balance" {
		t.Errorf("overdraw: %d %v", status, body)
	}

	status, _ = h.do("PATCH", "/api/v1/admin/payouts/"+uuid.NewString(), `{"action":"approve"}`, auth)
	if status != fiber.StatusForbidden {
		t.Errorf("non-admin action status = %d", status)
	}

	admin := bearer(h.token(uuid.New(), "admin"))
	status, _ = h.do("PATCH", "/api/v1/admin/payouts/"+uuid.NewString(), `{"action":"approve"}`, admin)
	if status != fiber.StatusNotFound {
		t.Errorf("unknown payout status = %d", status)
	}
	status, _ = h.do("PATCH", "/api/v1/admin/payouts/"+uuid.NewString(), `{"action":"launch"}`, admin)
	if status != fiber.StatusBadRequest {
		t.Errorf("unknown action status = %d", status)
	}

	status, body = h.do("POST", "/api/v1/admin/payouts/bulk", `{"ids":["`+uuid.NewString()+`"],"action":"reject","reason":"duplicate request"}`, admin)
	if status != fiber.StatusOK || body["failed"] != float64(1) {
		t.Errorf("bulk: %d %v", status, body)
	}

	status, body = h.do("GET", "/api/v1/admin/payouts?status=requested", "", admin)
	if status != fiber.StatusOK {
		t.Errorf("list: %d %v", status, body)
	}
}

func TestCronEndpointsRequireSecret(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/sweep", "/campaigns", "/payouts", "/outbox", "/kv"} {
		status, _ := h.do("POST", "/api/v1/cron"+path, "", nil)
		if status != fiber.StatusUnauthorized {
			t.Errorf("%s without secret: %d", path, status)
		}
		status, body := h.do("POST", "/api/v1/cron"+path, "", bearer("cron-token"))
		if status != fiber.StatusOK {
			t.Errorf("%s with secret: %d %v", path, status, body)
		}
	}
}
