package earnings

import (
	"github.com/mentorhive/mentorhive/internal/earnings/repository"
	"github.com/mentorhive/mentorhive/internal/earnings/service"
	"go.uber.org/fx"
)

var Module = fx.Module("earnings.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
