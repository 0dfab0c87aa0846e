package dispute

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/mentorhive/mentorhive/internal/dispute/domain"
	"github.com/mentorhive/mentorhive/internal/dispute/repository"
	"github.com/mentorhive/mentorhive/internal/dispute/service"
	"go.uber.org/fx"
	"gorm.io/gorm"

	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
)

var Module = fx.Module("dispute.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(NewGate),
)

// gate adapts the dispute repository to the settlement-side check without
// pulling the full dispute service into the settlement graph.
type gate struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewGate(db *gorm.DB, repo domain.Repository) settlementdomain.DisputeGate {
	return &gate{db: db, repo: repo}
}

func (g *gate) ActiveDisputeExists(ctx context.Context, bookingID snowflake.ID) (bool, error) {
	dispute, err := g.repo.FindActiveByBookingID(ctx, g.db, bookingID)
	if err != nil {
		return false, err
	}
	return dispute != nil, nil
}
