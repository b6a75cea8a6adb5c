// Package bootstrap wires settings into the process-wide singletons shared
// by the API server and the operator CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/anjiri1684/chain_donate/archive"
	config "github.com/anjiri1684/chain_donate/configs"
	"github.com/anjiri1684/chain_donate/database"
	"github.com/anjiri1684/chain_donate/kyc"
	"github.com/anjiri1684/chain_donate/logger"
	"github.com/anjiri1684/chain_donate/notifications"
	"github.com/anjiri1684/chain_donate/payments"
	"github.com/anjiri1684/chain_donate/services"
	"github.com/rs/zerolog/log"
)

type Options struct {
	// AutoMigrate runs gorm AutoMigrate after connecting. Production
	// deployments use cmd/migrate instead.
	AutoMigrate bool
}

func Init(ctx context.Context, opts Options) (*config.Settings, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	logger.New(logger.Config{Level: settings.Log.Level, Pretty: settings.Log.Pretty})

	if err := database.ConnectDB(database.Options{
		DSN:          settings.Database.URL,
		MaxOpenConns: settings.Database.MaxOpenConns,
		MaxIdleConns: settings.Database.MaxIdleConns,
	}); err != nil {
		return nil, err
	}
	if opts.AutoMigrate {
		if err := database.Migrate(); err != nil {
			return nil, err
		}
	}

	RegisterProviders(settings)

	if settings.Archive.Bucket != "" {
		a, err := archive.NewS3ArchiverFromSettings(ctx, settings.Archive)
		if err != nil {
			return nil, err
		}
		services.SetPayloadArchiver(a)
		log.Info().Str("bucket", settings.Archive.Bucket).Msg("webhook payload archive enabled")
	}

	notifications.InitEmailService(settings.Email)
	return settings, nil
}

// RegisterProviders installs the payment adapters, the payout disburser and
// the KYC provider. Rails without credentials are skipped.
func RegisterProviders(s *config.Settings) {
	payments.Reset()

	if s.CardRail.BaseURL != "" {
		payments.Register(payments.NewCardRail(payments.CardRailConfig{
			BaseURL:       s.CardRail.BaseURL,
			ClientID:      s.CardRail.ClientID,
			ClientSecret:  s.CardRail.ClientSecret,
			WebhookSecret: s.CardRail.WebhookSecret,
			Timeout:       s.CardRail.Timeout.Duration,
		}))
	} else {
		log.Warn().Msg("card rail not configured")
	}

	if s.BankRail.BaseURL != "" {
		bank := payments.NewBankRail(payments.BankRailConfig{
			BaseURL:         s.BankRail.BaseURL,
			TokenURL:        s.BankRail.TokenURL,
			APIKey:          s.BankRail.APIKey,
			APISecret:       s.BankRail.APISecret,
			AccountNumber:   s.BankRail.AccountNumber,
			RouteCode:       s.BankRail.RouteCode,
			CallbackBaseURL: s.BankRail.CallbackBaseURL,
			WebhookSecret:   s.BankRail.WebhookSecret,
			Timeout:         s.BankRail.Timeout.Duration,
		})
		payments.Register(bank)
		payments.SetDisburser(bank)
	} else {
		log.Warn().Msg("bank rail not configured, payouts cannot be dispatched")
	}

	if s.KYC.BaseURL != "" {
		services.SetKYCProvider(kyc.NewHTTPProvider(kyc.Config{
			BaseURL:       s.KYC.BaseURL,
			APIKey:        s.KYC.APIKey,
			TemplateID:    s.KYC.TemplateID,
			WebhookSecret: s.KYC.WebhookSecret,
			Timeout:       s.KYC.Timeout.Duration,
		}))
	} else {
		log.Warn().Msg("kyc provider not configured")
	}
}
