package events

import (
	"context"

	"github.com/mentorhive/mentorhive/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
	fx.Provide(NewLogNotifier),
	fx.Provide(NewPoller),
	fx.Invoke(registerPoller),
)

func registerPoller(lc fx.Lifecycle, cfg config.Config, poller *Poller, _ *gorm.DB) {
	if !cfg.OutboxEnabled {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			poller.Start()
			return nil
		},
		OnStop: func(context.Context) error {
			poller.Stop()
			return nil
		},
	})
}
