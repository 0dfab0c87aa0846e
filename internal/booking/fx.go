package booking

import (
	"github.com/mentorhive/mentorhive/internal/booking/repository"
	"github.com/mentorhive/mentorhive/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
