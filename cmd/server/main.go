package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	specpkg "github.com/homecinema/homecinema/api"
	"github.com/homecinema/homecinema/internal/api"
	"github.com/homecinema/homecinema/internal/authz"
	"github.com/homecinema/homecinema/internal/catalog"
	"github.com/homecinema/homecinema/internal/config"
	"github.com/homecinema/homecinema/internal/db"
	"github.com/homecinema/homecinema/internal/media"
	"github.com/homecinema/homecinema/internal/membership"
	"github.com/homecinema/homecinema/internal/metrics"
	"github.com/homecinema/homecinema/internal/ratelimit"
)

func main() {
	_ = godotenv.Load() // optional .env; real environment wins

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "homecinema",
		Short:         "HomeCinema admin backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context())
		},
	})

	root.AddCommand(newUserCmd())
	return root
}

func newUserCmd() *cobra.Command {
	var username, email, password, roles string

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user, typically the first administrator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || email == "" || password == "" {
				return errors.New("--username, --email and --password are required")
			}
			roleNames := splitList(roles)
			return runCreateUser(cmd.Context(), username, email, password, roleNames)
		},
	}
	create.Flags().StringVar(&username, "username", "", "Username (case-sensitive)")
	create.Flags().StringVar(&email, "email", "", "Email address")
	create.Flags().StringVar(&password, "password", os.Getenv("HOMECINEMA_PASSWORD"), "Password (env HOMECINEMA_PASSWORD)")
	create.Flags().StringVar(&roles, "roles", membership.RoleAdmin, "Comma-separated role names")

	userCmd := &cobra.Command{Use: "user", Short: "Manage users directly against the database"}
	userCmd.AddCommand(create)
	return userCmd
}

// app holds everything built from configuration.
type app struct {
	cfg        *config.Config
	db         *db.DB
	metrics    *metrics.Metrics
	membership *membership.Service
	redis      *redis.Client
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	setupLogger(cfg.LogLevel)

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if cfg.RunMigrations {
		if err := database.Migrate(ctx); err != nil {
			database.Close()
			return nil, err
		}
		if v, err := database.MigrationVersion(ctx); err == nil {
			slog.Info("database schema up to date", "version", v)
		}
	}

	m, err := metrics.New(prometheus.NewRegistry(), database.Pool)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	params := membership.DefaultHasherParams
	params.Time = cfg.Argon2Time
	params.MemoryKiB = cfg.Argon2MemoryKiB
	params.Threads = cfg.Argon2Threads

	svc := membership.NewService(
		membership.NewPostgresStore(database.Pool()),
		membership.NewHasher(params),
		membership.WithRecorder(m),
	)

	return &app{cfg: cfg, db: database, metrics: m, membership: svc}, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis client", "error", err)
		}
	}
	a.db.Close()
}

func (a *app) loginLimiter(ctx context.Context) ratelimit.Limiter {
	if !a.cfg.RedisEnabled() {
		return ratelimit.NewMemoryLimiter(a.cfg.LoginRateLimit, a.cfg.LoginRateWindow)
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})
	if err := a.redis.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unreachable; login rate limiting fails open until it recovers", "error", err, "addr", a.cfg.RedisAddr)
	}
	return ratelimit.NewRedisLimiter(a.redis, "homecinema:ratelimit", a.cfg.LoginRateLimit, a.cfg.LoginRateWindow)
}

func (a *app) imageStore(ctx context.Context) (media.ImageStore, error) {
	if !a.cfg.S3Enabled() {
		slog.Info("S3_BUCKET not set; image uploads disabled")
		return nil, nil
	}
	store, err := media.NewS3Store(ctx, media.Config{
		Endpoint:  a.cfg.S3Endpoint,
		Region:    a.cfg.S3Region,
		Bucket:    a.cfg.S3Bucket,
		AccessKey: a.cfg.S3AccessKey,
		SecretKey: a.cfg.S3SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func runServe(ctx context.Context) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	images, err := a.imageStore(ctx)
	if err != nil {
		return fmt.Errorf("configuring image storage: %w", err)
	}

	router := api.NewRouter(api.RouterDeps{
		Membership:        a.membership,
		Gate:              authz.NewGate(a.membership, authz.WithRecorder(a.metrics)),
		Catalog:           catalog.NewRepository(a.db.Pool()),
		Images:            images,
		DBPinger:          a.db,
		Metrics:           a.metrics,
		LoginLimiter:      a.loginLimiter(ctx),
		RegistrationRoles: a.cfg.RegistrationRoleIDs,
		MaxUploadBytes:    a.cfg.MaxUploadBytes,
		Version:           a.cfg.Version,
		OpenAPISpec:       specpkg.OpenAPISpec,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting HomeCinema server", "port", a.cfg.Port, "version", a.cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

func runMigrate(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	setupLogger(cfg.LogLevel)

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return err
	}
	v, err := database.MigrationVersion(ctx)
	if err != nil {
		return err
	}
	slog.Info("migrations applied", "version", v)
	return nil
}

func runCreateUser(ctx context.Context, username, email, password string, roleNames []string) error {
	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	roleIDs, err := resolveRoles(ctx, a.membership, roleNames)
	if err != nil {
		return err
	}

	u, err := a.membership.CreateUser(ctx, username, email, password, roleIDs)
	if err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	slog.Info("user created", "userId", u.ID, "username", u.Username, "roles", roleNames)
	return nil
}

func resolveRoles(ctx context.Context, svc *membership.Service, names []string) ([]int, error) {
	roles, err := svc.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	byName := make(map[string]int, len(roles))
	for _, r := range roles {
		byName[r.Name] = r.ID
	}

	ids := make([]int, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: %q", membership.ErrRoleNotFound, n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
