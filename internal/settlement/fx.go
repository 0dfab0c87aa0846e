package settlement

import (
	"github.com/mentorhive/mentorhive/internal/settlement/repository"
	"github.com/mentorhive/mentorhive/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
