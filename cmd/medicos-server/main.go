package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/imssbienestar/medicos/internal/config"
	"github.com/imssbienestar/medicos/internal/domain/account"
	"github.com/imssbienestar/medicos/internal/domain/audit"
	"github.com/imssbienestar/medicos/internal/domain/doctor"
	"github.com/imssbienestar/medicos/internal/domain/facility"
	"github.com/imssbienestar/medicos/internal/platform/auth"
	"github.com/imssbienestar/medicos/internal/platform/blobstore"
	"github.com/imssbienestar/medicos/internal/platform/db"
	"github.com/imssbienestar/medicos/internal/platform/middleware"
	"github.com/imssbienestar/medicos/internal/platform/reporting"
	"github.com/imssbienestar/medicos/internal/platform/validate"
)

const version = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medicos-server",
		Short: "IMSS Bienestar doctor roster API",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(secretCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return db.NewPool(ctx, db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	withMigrator := func(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.MigrationsDir
		}

		ctx := context.Background()
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		return fn(ctx, db.NewMigrator(pool, dir))
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
				fmt.Fprintln(out, "---------- ---------------------------------------- ---------- --------------------")
				for _, s := range statuses {
					status := "pending"
					appliedAt := ""
					if s.Applied {
						status = "applied"
						if s.AppliedAt != nil {
							appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
						}
					}
					fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account (bootstrap the first admin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			password, _ := cmd.Flags().GetString("password")
			role, _ := cmd.Flags().GetString("role")
			mustChange, _ := cmd.Flags().GetBool("must-change-password")

			req := &account.RegisterRequest{
				Username:           username,
				Password:           password,
				Role:               role,
				MustChangePassword: &mustChange,
			}
			if err := validate.New().Validate(req); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			revoker := auth.NewMemoryRevocationStore()
			defer revoker.Close()
			txm := db.NewTxManager(pool)
			auditSvc := audit.NewService(audit.NewRepo(pool), txm, auth.NewConfirmationGate(cfg.DeleteConfirmHash))
			svc := account.NewService(account.NewRepo(pool), txm, auth.NewBcryptHasher(),
				auth.NewTokenIssuer([]byte(cfg.JWTSigningKey), cfg.JWTIssuer, cfg.TokenTTL()), revoker, auditSvc)

			u, err := svc.Register(auth.WithIdentity(ctx, "0", "cli", auth.RoleAdmin), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d, role %s).\n", u.Username, u.ID, u.Role)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Account name")
	createCmd.Flags().String("password", "", "Initial password (min 8 characters)")
	createCmd.Flags().String("role", auth.RoleAdmin, "admin, user or readonly")
	createCmd.Flags().Bool("must-change-password", false, "Force a password change at first login")

	cmd.AddCommand(createCmd)
	return cmd
}

func secretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage the confirmation secret for destructive operations",
	}

	hashCmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the bcrypt hash to use as DELETE_CONFIRM_HASH",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			hash, err := auth.NewBcryptHasher().Hash(secret)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	hashCmd.Flags().String("secret", "", "Confirmation secret to hash")

	cmd.AddCommand(hashCmd)
	return cmd
}

// newRevocationStore shares revocations through Redis when REDIS_URL is
// set, otherwise keeps them in memory.
func newRevocationStore(ctx context.Context, cfg *config.Config) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		s := auth.NewMemoryRevocationStore()
		return s, s.Close, nil
	}
	client, err := auth.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	return auth.NewRedisRevocationStore(client), func() { client.Close() }, nil
}

// buildServer wires every domain onto a new echo instance. It performs no
// I/O, so a nil pool is fine until a request reaches the database.
func buildServer(cfg *config.Config, pool *pgxpool.Pool, logger zerolog.Logger,
	store blobstore.ObjectStore, revoker auth.RevocationStore) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M", strconv.FormatInt(cfg.UploadMaxSize+1<<20, 10)))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", auth.ConfirmSecretHeader},
	}))

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:      cfg.JWTIssuer,
		SigningKey:  []byte(cfg.JWTSigningKey),
		Revocations: revoker,
	}
	required := auth.JWTMiddleware(jwtCfg)
	if cfg.DevAuth {
		required = auth.OptionalJWTMiddleware(jwtCfg)
	}
	public := e.Group("/api", middleware.RateLimit(rateLimitCfg), auth.OptionalJWTMiddleware(jwtCfg))
	api := e.Group("/api", middleware.RateLimit(rateLimitCfg))
	if cfg.DevAuth {
		api.Use(auth.DevAuthMiddleware())
	}
	api.Use(required)

	// Domain wiring
	txm := db.NewTxManager(pool)
	gate := auth.NewConfirmationGate(cfg.DeleteConfirmHash)

	auditSvc := audit.NewService(audit.NewRepo(pool), txm, gate)
	facilitySvc := facility.NewService(facility.NewRepo(pool))
	issuer := auth.NewTokenIssuer([]byte(cfg.JWTSigningKey), cfg.JWTIssuer, cfg.TokenTTL())
	accountSvc := account.NewService(account.NewRepo(pool), txm, auth.NewBcryptHasher(), issuer, revoker, auditSvc)

	// Group middleware binds at route registration, so the guard goes first.
	api.Use(accountSvc.SessionGuard())

	audit.NewHandler(auditSvc).RegisterRoutes(api)
	facility.NewHandler(facilitySvc).RegisterRoutes(public)
	accountHandler := account.NewHandler(accountSvc)
	accountHandler.RegisterPublicRoutes(public, middleware.RateLimit(middleware.LoginRateLimitConfig()))
	accountHandler.RegisterRoutes(api)

	doctorSvc := doctor.NewService(doctor.NewRepo(pool), txm, facilitySvc, auditSvc, store, gate, logger,
		doctor.Config{MaxUploadSize: cfg.UploadMaxSize, ExpiryAlertDays: cfg.ExpiryAlertDays})
	doctor.NewHandler(doctorSvc).RegisterRoutes(api, public)

	reporting.NewHandler(reporting.NewStore(pool), logger).RegisterRoutes(public)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))

	return e
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	// Database
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	store, err := blobstore.New(cfg.Storage())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure object storage")
	}
	logger.Info().Str("backend", cfg.StorageBackend).Str("bucket", cfg.StorageBucket).Msg("object storage ready")

	revoker, closeRevoker, err := newRevocationStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to set up token revocation")
	}
	defer closeRevoker()
	if cfg.DeleteConfirmHash == "" {
		logger.Warn().Msg("DELETE_CONFIRM_HASH is not set; permanent deletions are disabled")
	}

	e := buildServer(cfg, pool, logger, store, revoker)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
