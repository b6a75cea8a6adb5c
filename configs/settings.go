package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Server     ServerSettings     `yaml:"server"`
	Database   DatabaseSettings   `yaml:"database"`
	Log        LogSettings        `yaml:"log"`
	Auth       AuthSettings       `yaml:"auth"`
	Reconciler ReconcilerSettings `yaml:"reconciler"`
	Sweeper    SweeperSettings    `yaml:"sweeper"`
	Campaign   CampaignSettings   `yaml:"campaign"`
	Payout     PayoutSettings     `yaml:"payout"`
	KYC        KYCSettings        `yaml:"kyc"`
	CardRail   CardRailSettings   `yaml:"card_rail"`
	BankRail   BankRailSettings   `yaml:"bank_rail"`
	Email      EmailSettings      `yaml:"email"`
	Archive    ArchiveSettings    `yaml:"archive"`
	Cron       CronSettings       `yaml:"cron"`
}

type ServerSettings struct {
	Port         string   `yaml:"port"`
	AppName      string   `yaml:"app_name"`
	AllowOrigins string   `yaml:"allow_origins"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

type DatabaseSettings struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type LogSettings struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type AuthSettings struct {
	JWTSecret string `yaml:"jwt_secret"`
	// CronSecretHash is a bcrypt hash of the cron bearer token. When empty
	// CronSecret is compared directly.
	CronSecret     string `yaml:"cron_secret"`
	CronSecretHash string `yaml:"cron_secret_hash"`
}

type ReconcilerSettings struct {
	MaxRetries int `yaml:"max_retries"`
}

type SweeperSettings struct {
	AbandonAfter      Duration `yaml:"abandon_after"`
	PollAfter         Duration `yaml:"poll_after"`
	MaxRetryCooldown  Duration `yaml:"max_retry_cooldown"`
	UserRetryCooldown Duration `yaml:"user_retry_cooldown"`
	MaxUserRetries    int      `yaml:"max_user_retries"`
	PollTimeout       Duration `yaml:"poll_timeout"`
	PollThrottle      Duration `yaml:"poll_throttle"`
	BatchSize         int      `yaml:"batch_size"`
}

type CampaignSettings struct {
	ClosureGrace Duration `yaml:"closure_grace"`
}

type PayoutSettings struct {
	FeePercent         decimal.Decimal `yaml:"-"`
	FeePercentRaw      string          `yaml:"fee_percent"`
	MaxAttempts        int             `yaml:"max_attempts"`
	RetryBackoff       Duration        `yaml:"retry_backoff"`
	MinRejectionLength int             `yaml:"min_rejection_length"`
}

type KYCSettings struct {
	Provider      string   `yaml:"provider"`
	BaseURL       string   `yaml:"base_url"`
	APIKey        string   `yaml:"api_key"`
	TemplateID    string   `yaml:"template_id"`
	WebhookSecret string   `yaml:"webhook_secret"`
	Freshness     Duration `yaml:"freshness"`
	Timeout       Duration `yaml:"timeout"`
}

type CardRailSettings struct {
	BaseURL       string   `yaml:"base_url"`
	ClientID      string   `yaml:"client_id"`
	ClientSecret  string   `yaml:"client_secret"`
	WebhookSecret string   `yaml:"webhook_secret"`
	Timeout       Duration `yaml:"timeout"`
}

type BankRailSettings struct {
	BaseURL         string   `yaml:"base_url"`
	TokenURL        string   `yaml:"token_url"`
	APIKey          string   `yaml:"api_key"`
	APISecret       string   `yaml:"api_secret"`
	AccountNumber   string   `yaml:"account_number"`
	RouteCode       string   `yaml:"route_code"`
	CallbackBaseURL string   `yaml:"callback_base_url"`
	WebhookSecret   string   `yaml:"webhook_secret"`
	Timeout         Duration `yaml:"timeout"`
}

type EmailSettings struct {
	BrevoAPIKey string `yaml:"brevo_api_key"`
	Sender      string `yaml:"sender"`
	SenderName  string `yaml:"sender_name"`
}

type ArchiveSettings struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
	Prefix string `yaml:"prefix"`
}

type CronSettings struct {
	Enabled         bool   `yaml:"enabled"`
	DonationSweep   string `yaml:"donation_sweep"`
	CampaignClosure string `yaml:"campaign_closure"`
	PayoutRetry     string `yaml:"payout_retry"`
	RecomputeOutbox string `yaml:"recompute_outbox"`
	KVPurge         string `yaml:"kv_purge"`
}

// Duration decodes "90m" style strings from YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// App holds the settings loaded at startup. Tests replace it with Defaults().
var App = Defaults()

func Defaults() *Settings {
	return &Settings{
		Server: ServerSettings{
			Port:         "8080",
			AppName:      "Chain Donate",
			AllowOrigins: "*",
			ReadTimeout:  Duration{15 * time.Second},
			WriteTimeout: Duration{15 * time.Second},
		},
		Database:   DatabaseSettings{MaxOpenConns: 25, MaxIdleConns: 5},
		Log:        LogSettings{Level: "info"},
		Reconciler: ReconcilerSettings{MaxRetries: 3},
		Sweeper: SweeperSettings{
			AbandonAfter:      Duration{15 * time.Minute},
			PollAfter:         Duration{time.Hour},
			MaxRetryCooldown:  Duration{24 * time.Hour},
			UserRetryCooldown: Duration{5 * time.Minute},
			MaxUserRetries:    3,
			PollTimeout:       Duration{10 * time.Second},
			PollThrottle:      Duration{15 * time.Second},
			BatchSize:         100,
		},
		Campaign: CampaignSettings{ClosureGrace: Duration{28 * 24 * time.Hour}},
		Payout: PayoutSettings{
			FeePercent:         decimal.NewFromInt(5),
			FeePercentRaw:      "5",
			MaxAttempts:        3,
			RetryBackoff:       Duration{time.Hour},
			MinRejectionLength: 10,
		},
		KYC: KYCSettings{
			Provider:  "persona",
			Freshness: Duration{365 * 24 * time.Hour},
			Timeout:   Duration{10 * time.Second},
		},
		CardRail: CardRailSettings{Timeout: Duration{10 * time.Second}},
		BankRail: BankRailSettings{Timeout: Duration{10 * time.Second}},
		Cron: CronSettings{
			Enabled:         true,
			DonationSweep:   "*/5 * * * *",
			CampaignClosure: "0 * * * *",
			PayoutRetry:     "*/15 * * * *",
			RecomputeOutbox: "* * * * *",
			KVPurge:         "30 3 * * *",
		},
	}
}

// Load reads defaults, then CONFIG_FILE (YAML) when present, then the
// environment. The result is stored in App.
func Load() (*Settings, error) {
	s := Defaults()

	if path := Config("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(s)

	fee, err := decimal.NewFromString(s.Payout.FeePercentRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid payout fee percent %q: %w", s.Payout.FeePercentRaw, err)
	}
	s.Payout.FeePercent = fee

	if s.Database.URL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	if s.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}

	App = s
	return s, nil
}

func applyEnv(s *Settings) {
	s.Server.Port = configString("PORT", s.Server.Port)
	s.Server.AllowOrigins = configString("ALLOW_ORIGINS", s.Server.AllowOrigins)
	s.Database.URL = configString("DATABASE_URL", s.Database.URL)
	s.Log.Level = configString("LOG_LEVEL", s.Log.Level)
	s.Log.Pretty = configBool("LOG_PRETTY", s.Log.Pretty)

	s.Auth.JWTSecret = configString("JWT_SECRET", s.Auth.JWTSecret)
	s.Auth.CronSecret = configString("CRON_SECRET", s.Auth.CronSecret)
	s.Auth.CronSecretHash = configString("CRON_SECRET_HASH", s.Auth.CronSecretHash)

	s.Reconciler.MaxRetries = configInt("RECONCILER_MAX_RETRIES", s.Reconciler.MaxRetries)
	s.Sweeper.AbandonAfter.Duration = configDuration("SWEEP_ABANDON_AFTER", s.Sweeper.AbandonAfter.Duration)
	s.Sweeper.PollAfter.Duration = configDuration("SWEEP_POLL_AFTER", s.Sweeper.PollAfter.Duration)
	s.Sweeper.BatchSize = configInt("SWEEP_BATCH_SIZE", s.Sweeper.BatchSize)
	s.Campaign.ClosureGrace.Duration = configDuration("CAMPAIGN_CLOSURE_GRACE", s.Campaign.ClosureGrace.Duration)

	s.Payout.FeePercentRaw = configString("PAYOUT_FEE_PERCENT", s.Payout.FeePercentRaw)
	s.Payout.MaxAttempts = configInt("PAYOUT_MAX_ATTEMPTS", s.Payout.MaxAttempts)

	s.KYC.BaseURL = configString("KYC_BASE_URL", s.KYC.BaseURL)
	s.KYC.APIKey = configString("KYC_API_KEY", s.KYC.APIKey)
	s.KYC.TemplateID = configString("KYC_TEMPLATE_ID", s.KYC.TemplateID)
	s.KYC.WebhookSecret = configString("KYC_WEBHOOK_SECRET", s.KYC.WebhookSecret)

	s.CardRail.BaseURL = configString("CARD_RAIL_BASE_URL", s.CardRail.BaseURL)
	s.CardRail.ClientID = configString("CARD_RAIL_CLIENT_ID", s.CardRail.ClientID)
	s.CardRail.ClientSecret = configString("CARD_RAIL_CLIENT_SECRET", s.CardRail.ClientSecret)
	s.CardRail.WebhookSecret = configString("CARD_RAIL_WEBHOOK_SECRET", s.CardRail.WebhookSecret)

	s.BankRail.BaseURL = configString("BANK_RAIL_BASE_URL", s.BankRail.BaseURL)
	s.BankRail.TokenURL = configString("BANK_RAIL_TOKEN_URL", s.BankRail.TokenURL)
	s.BankRail.APIKey = configString("BANK_RAIL_API_KEY", s.BankRail.APIKey)
	s.BankRail.APISecret = configString("BANK_RAIL_API_SECRET", s.BankRail.APISecret)
	s.BankRail.AccountNumber = configString("BANK_RAIL_ACCOUNT_NUMBER", s.BankRail.AccountNumber)
	s.BankRail.RouteCode = configString("BANK_RAIL_ROUTE_CODE", s.BankRail.RouteCode)
	s.BankRail.CallbackBaseURL = configString("WEBHOOK_BASE_URL", s.BankRail.CallbackBaseURL)
	s.BankRail.WebhookSecret = configString("BANK_RAIL_WEBHOOK_SECRET", s.BankRail.WebhookSecret)

	s.Email.BrevoAPIKey = configString("BREVO_API_KEY", s.Email.BrevoAPIKey)
	s.Email.Sender = configString("EMAIL_SENDER", s.Email.Sender)
	s.Email.SenderName = configString("EMAIL_SENDER_NAME", s.Email.SenderName)

	s.Archive.Bucket = configString("WEBHOOK_ARCHIVE_BUCKET", s.Archive.Bucket)
	s.Archive.Region = configString("AWS_REGION", s.Archive.Region)

	s.Cron.Enabled = configBool("CRON_ENABLED", s.Cron.Enabled)
}
