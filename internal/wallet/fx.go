package wallet

import (
	"github.com/mentorhive/mentorhive/internal/wallet/repository"
	"github.com/mentorhive/mentorhive/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
