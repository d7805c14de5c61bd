// ABOUTME: Entry point for the bot-gateway server
// ABOUTME: Wires storage, routing, webhooks and the HTTP API together

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/callbacks"
	"github.com/worldmates/bot-gateway/internal/commands"
	"github.com/worldmates/bot-gateway/internal/config"
	"github.com/worldmates/bot-gateway/internal/gateway"
	"github.com/worldmates/bot-gateway/internal/maintenance"
	"github.com/worldmates/bot-gateway/internal/metrics"
	"github.com/worldmates/bot-gateway/internal/platform"
	"github.com/worldmates/bot-gateway/internal/polls"
	"github.com/worldmates/bot-gateway/internal/ratelimit"
	"github.com/worldmates/bot-gateway/internal/registry"
	"github.com/worldmates/bot-gateway/internal/router"
	"github.com/worldmates/bot-gateway/internal/store"
	"github.com/worldmates/bot-gateway/internal/userstate"
	"github.com/worldmates/bot-gateway/internal/webhook"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
 _           _                     _
| |__   ___ | |_       __ _  __ _| |_ _____      ____ _ _   _
| '_ \ / _ \| __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| |_) | (_) | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_.__/ \___/ \__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                      |___/                              |___/
`

// getConfigPath returns the path to the gateway config file.
// Priority: BOTGW_CONFIG env var > XDG_CONFIG_HOME/worldmates/bot-gateway.yaml
// > ~/.config/worldmates/bot-gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("BOTGW_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "bot-gateway.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "worldmates", "bot-gateway.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: bot-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve     Start the gateway server")
		fmt.Println("  init      Write a starter config file")
		fmt.Println("  health    Check gateway health")
		fmt.Println("  version   Print the version")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.Database.Path)
	if cfg.Metrics.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Metrics:  %s\n", cfg.Metrics.Path)
	}
	fmt.Println()

	logger.Info("starting bot-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
	)

	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer s.Close()

	var m *metrics.Metrics
	metricsPath := ""
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metricsPath = cfg.Metrics.Path
	}

	limiter := ratelimit.New(cfg.Limits.RateLimitPerSecond, cfg.Limits.RateLimitPerMinute, logger)

	// Empty platform URLs select the no-op implementations, which is
	// standalone mode: messages persist but leave through polling only.
	var delivery platform.MessageDelivery = platform.NoopDelivery{}
	if cfg.Platform.DeliveryURL != "" {
		delivery = platform.NewHTTPDelivery(cfg.Platform.DeliveryURL, logger)
	}
	var uploader platform.MediaUploader = platform.NoopUploader{}
	if cfg.Platform.MediaURL != "" {
		uploader = platform.NewHTTPUploader(cfg.Platform.MediaURL, logger)
	}
	// The broadcaster is the in-process realtime channel; the socket
	// layer subscribes per connected client.
	realtime := platform.NewBroadcaster(logger)

	rt := router.New(s, limiter, delivery, uploader, realtime, m, logger)
	dispatcher := webhook.NewDispatcher(s, m, cfg.Webhooks.Workers, logger)
	rt.SetPusher(dispatcher)

	janitor, err := maintenance.New(s, limiter, maintenance.Config{
		Interval:          cfg.Retention.SweepInterval,
		DeliveryRetention: cfg.Retention.DeliveryRetention,
		MessageRetention:  cfg.Retention.MessageRetention,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating janitor: %w", err)
	}

	reg := registry.New(s, registry.Config{
		MaxBotsPerOwner:    cfg.Limits.MaxBotsPerOwner,
		RateLimitPerSecond: cfg.Limits.RateLimitPerSecond,
		RateLimitPerMinute: cfg.Limits.RateLimitPerMinute,
	}, logger)

	gw := gateway.New(gateway.Options{
		Store:       s,
		Registry:    reg,
		Commands:    commands.New(s, logger),
		Router:      rt,
		Dispatcher:  dispatcher,
		Polls:       polls.NewManager(s, rt, m, logger),
		Callbacks:   callbacks.NewManager(s, realtime, m, logger),
		UserState:   userstate.New(s, logger),
		Sessions:    auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)),
		BotAuth:     auth.NewBotAuthenticator(s),
		Metrics:     m,
		MetricsPath: metricsPath,
		Logger:      logger,
	})

	if err := janitor.Start(); err != nil {
		return fmt.Errorf("starting janitor: %w", err)
	}
	defer janitor.Stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return gw.Run(ctx, cfg.Server.HTTPAddr)
	})
	eg.Go(func() error {
		return dispatcher.Run(ctx)
	})
	return eg.Wait()
}

const starterConfig = `server:
  http_addr: ":8081"

database:
  path: "bot-gateway.db"

auth:
  jwt_secret: "${BOTGW_JWT_SECRET}"

limits:
  max_bots_per_owner: 20
  rate_limit_per_second: 30
  rate_limit_per_minute: 600

webhooks:
  workers: 4

retention:
  sweep_interval: "1h"
  delivery_retention: "168h"
  message_retention: "720h"

logging:
  level: "info"
  format: "text"

metrics:
  enabled: true
  path: "/metrics"
`

func runInit() error {
	configPath := getConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(starterConfig), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Wrote %s\n", configPath)
	fmt.Println("Set BOTGW_JWT_SECRET before starting the server.")
	return nil
}

func runHealth(ctx context.Context) error {
	configPath := getConfigPath()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr := cfg.Server.HTTPAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	url := fmt.Sprintf("http://%s/healthz", addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = &colorHandler{
			level: level,
		}
	}

	return slog.New(handler)
}

// colorHandler provides colorized log output with thread-safe writes.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	// Format timestamp
	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	// Colorize level
	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	// Print message
	buf.WriteString(r.Message)

	// Print handler-level attrs first (from WithAttrs)
	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	// Print record attrs
	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Print(buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
