package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mentorhive/mentorhive/internal/booking"
	bookingdomain "github.com/mentorhive/mentorhive/internal/booking/domain"
	"github.com/mentorhive/mentorhive/internal/config"
	"github.com/mentorhive/mentorhive/internal/dispute"
	disputedomain "github.com/mentorhive/mentorhive/internal/dispute/domain"
	"github.com/mentorhive/mentorhive/internal/earnings"
	earningsdomain "github.com/mentorhive/mentorhive/internal/earnings/domain"
	"github.com/mentorhive/mentorhive/internal/events"
	"github.com/mentorhive/mentorhive/internal/identity"
	"github.com/mentorhive/mentorhive/internal/ratelimit"
	"github.com/mentorhive/mentorhive/internal/refund"
	refunddomain "github.com/mentorhive/mentorhive/internal/refund/domain"
	"github.com/mentorhive/mentorhive/internal/scheduler"
	"github.com/mentorhive/mentorhive/internal/settlement"
	settlementdomain "github.com/mentorhive/mentorhive/internal/settlement/domain"
	"github.com/mentorhive/mentorhive/internal/transfer"
	"github.com/mentorhive/mentorhive/internal/wallet"
	walletdomain "github.com/mentorhive/mentorhive/internal/wallet/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	booking.Module,
	wallet.Module,
	earnings.Module,
	transfer.Module,
	refund.Module,
	settlement.Module,
	dispute.Module,
	events.Module,
	ratelimit.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger) *gin.Engine {
	return NewEngine(cfg, log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http.server.listen", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node

	bookingSvc    bookingdomain.Service
	disputeSvc    disputedomain.Service
	refundSvc     refunddomain.Service
	walletSvc     walletdomain.Service
	earningsSvc   earningsdomain.Service
	settlementSvc settlementdomain.Service

	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	BookingSvc    bookingdomain.Service
	DisputeSvc    disputedomain.Service
	RefundSvc     refunddomain.Service
	WalletSvc     walletdomain.Service
	EarningsSvc   earningsdomain.Service
	SettlementSvc settlementdomain.Service

	Scheduler *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		bookingSvc:    p.BookingSvc,
		disputeSvc:    p.DisputeSvc,
		refundSvc:     p.RefundSvc,
		walletSvc:     p.WalletSvc,
		earningsSvc:   p.EarningsSvc,
		settlementSvc: p.SettlementSvc,
		scheduler:     p.Scheduler,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", identity.GinMiddleware())

	api.POST("/bookings", s.Checkout)
	api.GET("/bookings/:id", s.GetBooking)
	api.POST("/bookings/:id/payment", s.ConfirmPayment)
	api.POST("/bookings/:id/complete", s.CompleteBooking)
	api.POST("/bookings/:id/reviewable", s.MarkReviewable)
	api.POST("/bookings/:id/reviewed", s.MarkReviewed)
	api.POST("/bookings/:id/cancel", s.CancelBooking)
	api.GET("/bookings/:id/refund", s.GetRefund)

	api.POST("/cold-messages", s.PurchaseColdMessage)

	api.POST("/bookings/:id/disputes", s.FileDispute)
	api.GET("/disputes/:id", s.GetDispute)
	api.POST("/disputes/:id/respond", s.RespondToDispute)

	api.GET("/wallet", s.GetWallet)
	api.GET("/mentors/me/earnings", s.GetOwnEarnings)
	api.GET("/mentors/me/earnings/monthly", s.GetOwnMonthlyEarnings)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/v1/admin", identity.GinMiddleware(), identity.RequireAdmin())

	admin.GET("/disputes", s.ListOpenDisputes)
	admin.POST("/disputes/:id/escalate", s.EscalateDispute)
	admin.POST("/disputes/:id/resolve", s.ResolveDispute)
	admin.POST("/disputes/:id/dismiss", s.DismissDispute)

	admin.PUT("/mentors/:id/tier", s.SetMentorTier)
	admin.PUT("/mentors/:id/payout-account", s.SetPayoutAccount)
	admin.GET("/mentors/:id/earnings", s.GetMentorEarnings)
	admin.GET("/mentors/:id/earnings/monthly", s.GetMentorMonthlyEarnings)

	admin.GET("/payouts/failed", s.ListFailedPayouts)
	admin.POST("/payouts/bookings/:id", s.ForceSettleBooking)
	admin.POST("/payouts/cold-messages/:id", s.ForceSettleColdMessage)
	admin.POST("/scheduler/jobs/:name/run", s.RunSchedulerJob)
}
