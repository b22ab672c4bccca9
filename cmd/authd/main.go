// Command authd runs a standalone authentication server backed by the
// in-memory user store. It exists for development and integration testing;
// production deployments embed authkit behind their own store and routing.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/redis/go-redis/v9"

	authkit "github.com/planora/authkit"
	"github.com/planora/authkit/httpapi"
	"github.com/planora/authkit/metrics/export/prometheus"
)

type config struct {
	Addr          string        `env:"AUTHD_ADDR" envDefault:":8080"`
	DevMode       bool          `env:"AUTHD_DEV" envDefault:"false"`
	SigningSecret string        `env:"AUTHD_SIGNING_SECRET"`
	RedisAddr     string        `env:"AUTHD_REDIS_ADDR"`
	Issuer        string        `env:"AUTHD_ISSUER" envDefault:"authkit"`
	AccessTTL     time.Duration `env:"AUTHD_ACCESS_TTL" envDefault:"15m"`
	RefreshTTL    time.Duration `env:"AUTHD_REFRESH_TTL" envDefault:"168h"`
	AuditLog      bool          `env:"AUTHD_AUDIT_LOG" envDefault:"false"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if err := run(logger); err != nil {
		logger.Error("authd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	var cfg config
	if err := env.Parse(&cfg); err != nil {
		return err
	}

	secret := []byte(cfg.SigningSecret)
	if len(secret) == 0 {
		if !cfg.DevMode {
			return errors.New("AUTHD_SIGNING_SECRET is required outside dev mode")
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return err
		}
		logger.Warn("using an ephemeral signing secret, tokens will not survive a restart")
	}

	kitCfg := authkit.DefaultConfig()
	kitCfg.Token.PrivateKey = secret
	kitCfg.Token.Issuer = cfg.Issuer
	kitCfg.Token.AccessTTL = cfg.AccessTTL
	kitCfg.Token.RefreshTTL = cfg.RefreshTTL
	if cfg.AuditLog {
		kitCfg.Audit.Enabled = true
	}

	builder := authkit.New().
		WithConfig(kitCfg).
		WithUserStore(authkit.NewMemoryUserStore())

	if cfg.AuditLog {
		builder = builder.WithAuditSink(authkit.NewJSONWriterSink(os.Stdout))
	}

	redisAddr := cfg.RedisAddr
	if redisAddr == "" && cfg.DevMode {
		mr, err := miniredis.Run()
		if err != nil {
			return err
		}
		defer mr.Close()
		redisAddr = mr.Addr()
		logger.Info("dev mode: embedded redis for the revocation registry", slog.String("addr", redisAddr))
	}
	if redisAddr != "" {
		builder = builder.WithRedis(redis.NewClient(&redis.Options{Addr: redisAddr}))
	} else {
		logger.Info("no redis configured, running stateless: logout will not revoke sessions")
	}

	svc, err := builder.Build()
	if err != nil {
		return err
	}
	defer svc.Close()

	mux := http.NewServeMux()
	mux.Handle("/auth/", httpapi.NewServer(svc, logger, cfg.DevMode).Routes())
	mux.Handle("GET /metrics", prometheus.NewPrometheusExporter(svc).Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("authd listening", slog.String("addr", cfg.Addr), slog.Bool("dev", cfg.DevMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", slog.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
