package refund

import (
	"github.com/mentorhive/mentorhive/internal/refund/repository"
	"github.com/mentorhive/mentorhive/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
