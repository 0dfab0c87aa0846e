package migration

import (
	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	"github.com/mentorhive/mentorhive/internal/config"
	disputedomain "github.com/mentorhive/mentorhive/internal/dispute/domain"
	earningsdomain "github.com/mentorhive/mentorhive/internal/earnings/domain"
	"github.com/mentorhive/mentorhive/internal/events"
	walletdomain "github.com/mentorhive/mentorhive/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite is for local runs and tests; gorm's automigrate is
			// enough there and avoids postgres-only DDL.
			return AutoMigrate(conn)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)

func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&bookingdomain.Booking{},
		&bookingdomain.BookingRefund{},
		&bookingdomain.RescheduleRequest{},
		&bookingdomain.ColdMessage{},
		&walletdomain.Wallet{},
		&walletdomain.WalletTransaction{},
		&earningsdomain.MentorEarnings{},
		&earningsdomain.EarningEntry{},
		&earningsdomain.MonthlyEarnings{},
		&disputedomain.Dispute{},
		&events.OutboxEvent{},
	)
}
