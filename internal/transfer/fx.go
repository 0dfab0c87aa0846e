package transfer

import (
	"fmt"

	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/transfer/adapters/fake"
	"github.com/mentorhive/mentorhive/internal/transfer/adapters/stripe"
	"github.com/mentorhive/mentorhive/internal/transfer/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewGateway selects the transfer driver from configuration. The fake
// driver keeps local development off the network.
func NewGateway(cfg config.Config, log *zap.Logger) (domain.Gateway, error) {
	switch cfg.TransferDriver {
	case "stripe":
		gateway, err := stripe.New(stripe.Config{
			SecretKey: cfg.StripeSecretKey,
			BaseURL:   cfg.StripeBaseURL,
		})
		if err != nil {
			return nil, err
		}
		log.Info("transfer.gateway.selected", zap.String("driver", gateway.Name()))
		return gateway, nil
	case "fake":
		log.Warn("transfer.gateway.selected", zap.String("driver", "fake"))
		return fake.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown transfer driver %q", domain.ErrInvalidConfig, cfg.TransferDriver)
	}
}

var Module = fx.Module("transfer",
	fx.Provide(NewGateway),
)
