package database

import (
	"fmt"
	"time"

	"github.com/anjiri1684/chain_donate/models"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

type Options struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

func ConnectDB(opts Options) error {
	db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql handle: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	DB = db
	log.Info().Msg("database connected")
	return nil
}

// Models lists every table owned by the engine, in migration order.
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Campaign{},
		&models.Chainer{},
		&models.Donation{},
		&models.DonationEvent{},
		&models.RecomputeTask{},
		&models.PayoutRequest{},
		&models.KYCVerification{},
		&models.WebhookEvent{},
		&models.KVEntry{},
	}
}

func Migrate() error {
	if err := DB.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	log.Info().Msg("database migration successful")
	return nil
}
