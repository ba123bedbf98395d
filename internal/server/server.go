package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	allowancedomain "github.com/counselkit/letterflow/internal/allowance/domain"
	auditdomain "github.com/counselkit/letterflow/internal/audit/domain"
	billingdomain "github.com/counselkit/letterflow/internal/billing/domain"
	commissiondomain "github.com/counselkit/letterflow/internal/commission/domain"
	"github.com/counselkit/letterflow/internal/config"
	coupondomain "github.com/counselkit/letterflow/internal/coupon/domain"
	letterdomain "github.com/counselkit/letterflow/internal/letter/domain"
	"github.com/counselkit/letterflow/internal/principal"
	"github.com/counselkit/letterflow/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(telemetry.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	genID         *snowflake.Node
	plans         *config.PlanCatalogHolder
	letterSvc     letterdomain.Service
	allowanceSvc  allowancedomain.Service
	billingSvc    billingdomain.Service
	commissionSvc commissiondomain.Service
	couponSvc     coupondomain.Service
	auditSvc      auditdomain.Service
}

type Params struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	GenID         *snowflake.Node
	Plans         *config.PlanCatalogHolder
	LetterSvc     letterdomain.Service
	AllowanceSvc  allowancedomain.Service
	BillingSvc    billingdomain.Service
	CommissionSvc commissiondomain.Service
	CouponSvc     coupondomain.Service
	AuditSvc      auditdomain.Service
}

func NewServer(p Params) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		genID:         p.GenID,
		plans:         p.Plans,
		letterSvc:     p.LetterSvc,
		allowanceSvc:  p.AllowanceSvc,
		billingSvc:    p.BillingSvc,
		commissionSvc: p.CommissionSvc,
		couponSvc:     p.CouponSvc,
		auditSvc:      p.AuditSvc,
	}

	svc.registerHealthRoutes()
	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", PrincipalRequired())

	// -------- Letters (subscriber) --------
	api.POST("/letters", RequireRole(principal.RoleSubscriber), s.CreateLetter)
	api.GET("/letters", RequireRole(principal.RoleSubscriber), s.ListLetters)
	api.GET("/letters/:id", s.GetLetter)
	api.POST("/letters/:id/generate", RequireRole(principal.RoleSubscriber), s.SubmitLetter)
	api.POST("/letters/:id/resubmit", RequireRole(principal.RoleSubscriber), s.ResubmitLetter)

	// -------- Generation / delivery callbacks --------
	api.POST("/letters/:id/generated", RequireRole(principal.RoleAdmin), s.CompleteGeneration)
	api.POST("/letters/:id/failed", RequireRole(principal.RoleAdmin), s.FailGeneration)
	api.POST("/letters/:id/delivered", RequireRole(principal.RoleAdmin), s.MarkDelivered)

	// -------- Subscription --------
	api.GET("/subscription", RequireRole(principal.RoleSubscriber), s.GetSubscription)
	api.GET("/subscription/plans", s.ListPlans)

	// -------- Review (attorney portal) --------
	review := api.Group("/review", RequireRole(principal.RoleReviewer))
	{
		review.GET("/letters", s.ListPendingReview)
		review.POST("/letters/:id/claim", s.ClaimLetter)
		review.POST("/letters/:id/release", s.ReleaseLetter)
		review.POST("/letters/:id/approve", s.ApproveLetter)
		review.POST("/letters/:id/reject", s.RejectLetter)
	}

	// -------- Employee dashboard --------
	dashboard := api.Group("/dashboard", RequireRole(principal.RoleEmployee))
	{
		dashboard.GET("/commissions", s.ListCommissions)
		dashboard.GET("/coupons", s.ListCoupons)
		dashboard.POST("/coupons", s.CreateCoupon)
	}

	// -------- Admin --------
	admin := api.Group("/admin", RequireRole(principal.RoleAdmin))
	{
		admin.GET("/letters", s.AdminListLetters)
		admin.GET("/audit", s.AdminListAudit)
	}
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/:provider", s.HandleWebhook)
}
