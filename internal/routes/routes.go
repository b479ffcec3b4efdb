package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/cryptopay/cryptopay/internal/auth"
	"github.com/cryptopay/cryptopay/internal/config"
	"github.com/cryptopay/cryptopay/internal/funding"
	"github.com/cryptopay/cryptopay/internal/gateway"
	"github.com/cryptopay/cryptopay/internal/identity"
	"github.com/cryptopay/cryptopay/internal/ledger"
	"github.com/cryptopay/cryptopay/internal/middleware"
	"github.com/cryptopay/cryptopay/internal/notification"
	"github.com/cryptopay/cryptopay/internal/payments"
	"github.com/cryptopay/cryptopay/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Gateway overrides the client built from Cfg.Gateway.
	Gateway gateway.Client
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though config also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	// Services and handlers
	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}
	gw := d.Gateway
	if gw == nil {
		var err error
		if gw, err = newGateway(d.Cfg); err != nil {
			return err
		}
	}
	signer := gateway.NewSigner(d.Cfg.Gateway.TestKeySecret, d.Cfg.Gateway.LiveKeySecret)
	notifier := notification.NewLoggerNotifier(d.Logger)

	identitySvc := identity.NewService(store, d.Cfg.Auth.AliasDomain)
	authSvc := auth.NewService(d.Cfg.AppName, d.Cfg.Auth.JWTSecret, d.Cfg.Auth.AccessTokenTTL)
	paymentSvc := payments.NewService(store, gw, notifier, d.Logger, d.Cfg.Gateway.Timeout)
	fundingSvc, err := funding.NewService(store, gw, signer, paymentSvc, notifier, d.Logger)
	if err != nil {
		return err
	}
	walletSvc := wallet.NewService(store)

	identityHandler := identity.NewHandler(identitySvc)
	authHandler := auth.NewHandler(identitySvc, authSvc)
	paymentHandler := payments.NewHandler(paymentSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	walletHandler := wallet.NewHandler(walletSvc)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	rateLimiter := middleware.LoginRateLimit(d.Cache, d.Cfg.LoginRateLimit, d.Logger)
	RegisterAuthRoutes(api, identityHandler, authHandler, rateLimiter)

	// Protected routes
	protected := api.Group("", middleware.JWTAuth(authSvc))
	RegisterProfileRoutes(protected, identityHandler)
	RegisterWalletMeRoute(protected, identitySvc, walletSvc)
	RegisterWalletRoutes(protected, walletHandler)

	// Balance-moving routes replay on a repeated Idempotency-Key.
	money := protected.Group("", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	RegisterPaymentRoutes(money, paymentHandler)
	RegisterFundingRoutes(money, fundingHandler)

	return nil
}

// newGateway builds the HTTP gateway client, or the simulator when no base URL
// is configured. The simulator captures every payment, so it is refused
// outside development.
func newGateway(cfg config.Config) (gateway.Client, error) {
	gw := cfg.Gateway
	if gw.BaseURL == "" {
		if !cfg.IsDev() {
			return nil, fmt.Errorf("GATEWAY_BASE_URL is required when APP_ENV=%s", cfg.Env)
		}
		return &gateway.StaticClient{}, nil
	}
	return gateway.NewHTTPClient(gw.BaseURL, map[gateway.Mode]gateway.Credentials{
		gateway.ModeTest: {KeyID: gw.TestKeyID, KeySecret: gw.TestKeySecret},
		gateway.ModeLive: {KeyID: gw.LiveKeyID, KeySecret: gw.LiveKeySecret},
	}, gw.Timeout), nil
}
