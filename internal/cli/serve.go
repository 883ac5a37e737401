package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/enftaurus/vidyamitra/internal/api"
	"github.com/enftaurus/vidyamitra/internal/audit"
	"github.com/enftaurus/vidyamitra/internal/bridge"
	"github.com/enftaurus/vidyamitra/internal/detector"
	"github.com/enftaurus/vidyamitra/internal/flowstore"
	"github.com/enftaurus/vidyamitra/internal/ledger"
	"github.com/enftaurus/vidyamitra/internal/presence"
	"github.com/enftaurus/vidyamitra/internal/session"
	"github.com/enftaurus/vidyamitra/pkg/config"
	"github.com/enftaurus/vidyamitra/pkg/logging"
	"github.com/enftaurus/vidyamitra/pkg/metrics"
	"github.com/enftaurus/vidyamitra/pkg/model"
	"github.com/enftaurus/vidyamitra/pkg/webhook"
)

const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the round-flow backend and the session bridge",
	Long: `Run the HTTP server that owns round progression and hosts live round
sessions.

Routes:
  GET  /interview_flow/status           current status (user_id cookie)
  POST /interview_flow/reset            reset every round
  POST /interview_flow/<round>/start    start a round
  POST /interview_flow/<round>/answer   check a round accepts answers
  POST /interview_flow/<round>/complete complete a round
  GET  /ws/session?round=<round>        websocket bridge for a round view
  GET  /metrics                         Prometheus metrics (metrics.enabled)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		app, err := newApp(cfg, logging.Global())
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- app.Server.Start(addr) }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logging.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-errCh
	},
}

// app is the wired server and the resources it must release.
type app struct {
	Server  *api.Server
	Flow    *flowstore.Service
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.ErrorErr("close", err)
		}
	}
}

// newApp wires storage, notifications, metrics and the bridge from c.
func newApp(c *config.Config, log *logging.Logger) (*app, error) {
	a := &app{}

	store, err := openStore(c.Store, a)
	if err != nil {
		return nil, err
	}
	a.Flow = flowstore.NewService(store, log)

	var reg *metrics.Registry
	if c.Metrics.Enabled {
		metrics.Init()
		reg = metrics.Default()
	}

	var (
		notifiers session.Notifiers
		onReset   []func(userID, reason string) error
	)
	if len(c.Webhooks) > 0 {
		hooks := webhook.DefaultConfig()
		hooks.Hooks = c.Webhooks
		client := webhook.NewClient(hooks)
		a.closers = append(a.closers, client.Close)
		notifiers = append(notifiers, client)
		onReset = append(onReset, client.SendFlowReset)
	}
	if c.Audit.Path != "" {
		trail := audit.NewFileAppender(c.Audit.Path)
		notifiers = append(notifiers, trail)
		onReset = append(onReset, trail.SendFlowReset)
	}
	a.Flow.OnReset(func(userID, reason string) {
		for _, fn := range onReset {
			if err := fn(userID, reason); err != nil {
				log.ErrorErr("record flow reset", err, map[string]any{"user_id": userID})
			}
		}
	})

	var notifier session.Notifier
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	det := detector.New(c.Detector.URL, c.Detector.Timeout)
	factory := func(userID string, round model.RoundKey, cam presence.Camera, listener session.Listener) (*bridge.Session, error) {
		l := ledger.New(a.Flow.Source(userID), log, reg)
		ctrl, err := session.New(session.Options{
			Round:      round,
			UserID:     userID,
			Proctoring: c.Proctoring,
		}, session.Deps{
			Ledger:   l,
			Camera:   cam,
			Detector: det,
			Listener: listener,
			Notifier: notifier,
			Logger:   log,
			Metrics:  reg,
		})
		if err != nil {
			return nil, err
		}
		return &bridge.Session{Controller: ctrl, Ledger: l}, nil
	}

	handler := bridge.NewHandler(factory, c.Server.AllowedOrigins, log)
	a.Server = api.NewServer(a.Flow, reg, log, handler)
	return a, nil
}

func openStore(c config.StoreConfig, a *app) (flowstore.Store, error) {
	switch c.Driver {
	case "", "memory":
		return flowstore.NewMemoryStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr, DB: c.RedisDB})
		a.closers = append(a.closers, client.Close)
		return flowstore.NewRedisStore(client, c.TTL), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", c.Driver)
	}
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}
