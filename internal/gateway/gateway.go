// ABOUTME: HTTP surface of the bot gateway: operation table, auth dispatch, server lifecycle
// ABOUTME: One route per operation under /api/bot/v1/, uniform handler contract

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/worldmates/bot-gateway/internal/auth"
	"github.com/worldmates/bot-gateway/internal/callbacks"
	"github.com/worldmates/bot-gateway/internal/commands"
	"github.com/worldmates/bot-gateway/internal/metrics"
	"github.com/worldmates/bot-gateway/internal/polls"
	"github.com/worldmates/bot-gateway/internal/registry"
	"github.com/worldmates/bot-gateway/internal/router"
	"github.com/worldmates/bot-gateway/internal/store"
	"github.com/worldmates/bot-gateway/internal/userstate"
	"github.com/worldmates/bot-gateway/internal/webhook"
)

// basePath prefixes every operation route.
const basePath = "/api/bot/v1/"

// maxBodySize caps request bodies; inline media rides in JSON.
const maxBodySize = 16 << 20

// authMode selects how an operation authenticates its caller.
type authMode int

const (
	authPublic authMode = iota // anonymous; session honored when present
	authOwner                  // owner session (JWT)
	authUser                   // end-user session (JWT)
	authBot                    // bot token
	authEither                 // bot token or session
)

// handlerFunc is the uniform operation contract.
type handlerFunc func(ctx context.Context, id *auth.Identity, r *http.Request) (any, error)

// operation is one named RPC in the table.
type operation struct {
	name    string
	auth    authMode
	handler handlerFunc
}

// Options wires the gateway's collaborators.
type Options struct {
	Store      store.Store
	Registry   *registry.Registry
	Commands   *commands.Service
	Router     *router.Router
	Dispatcher *webhook.Dispatcher
	Polls      *polls.Manager
	Callbacks  *callbacks.Manager
	UserState  *userstate.Store
	Sessions   auth.SessionVerifier
	BotAuth    *auth.BotAuthenticator
	Metrics    *metrics.Metrics
	// MetricsPath exposes the scrape endpoint when non-empty.
	MetricsPath string
	Logger      *slog.Logger
}

// Gateway serves the bot API.
type Gateway struct {
	store      store.Store
	registry   *registry.Registry
	commands   *commands.Service
	router     *router.Router
	dispatcher *webhook.Dispatcher
	polls      *polls.Manager
	callbacks  *callbacks.Manager
	userstate  *userstate.Store
	sessions   auth.SessionVerifier
	botAuth    *auth.BotAuthenticator
	metrics    *metrics.Metrics

	metricsPath string
	validate    *validator.Validate
	logger      *slog.Logger
}

// New creates a Gateway from its wired collaborators.
func New(opts Options) *Gateway {
	return &Gateway{
		store:       opts.Store,
		registry:    opts.Registry,
		commands:    opts.Commands,
		router:      opts.Router,
		dispatcher:  opts.Dispatcher,
		polls:       opts.Polls,
		callbacks:   opts.Callbacks,
		userstate:   opts.UserState,
		sessions:    opts.Sessions,
		botAuth:     opts.BotAuth,
		metrics:     opts.Metrics,
		metricsPath: opts.MetricsPath,
		validate:    validator.New(),
		logger:      opts.Logger.With("component", "gateway"),
	}
}

// Handler builds the HTTP mux from the operation table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	for _, op := range g.operations() {
		mux.Handle("POST "+basePath+op.name, g.wrap(op))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	})

	if g.metricsPath != "" && g.metrics != nil {
		mux.Handle("GET "+g.metricsPath, g.metrics.Handler())
	}

	return mux
}

// Run serves the API until the context is cancelled, then drains.
func (g *Gateway) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		g.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

// wrap authenticates per the operation's mode and runs the handler
// under the uniform contract.
func (g *Gateway) wrap(op operation) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

		id, err := g.authenticate(r, op.auth)
		if err != nil {
			g.writeError(w, op.name, err)
			return
		}

		// Identity rides the context too, for code below the handler
		// signature (store hooks, logging).
		ctx := auth.WithIdentity(r.Context(), id)

		result, err := op.handler(ctx, id, r)
		if err != nil {
			g.writeError(w, op.name, err)
			return
		}
		g.writeResult(w, result)
	})
}

// authenticate resolves the caller identity for the given mode.
func (g *Gateway) authenticate(r *http.Request, mode authMode) (*auth.Identity, error) {
	token := bearerToken(r)

	switch mode {
	case authPublic:
		// Anonymous is fine; a valid session upgrades visibility
		// (e.g. owners see their private bots in get_bot_info).
		if token != "" {
			if userID, err := g.sessions.Verify(token); err == nil {
				return &auth.Identity{UserID: userID}, nil
			}
		}
		return &auth.Identity{}, nil

	case authOwner, authUser:
		if token == "" {
			return nil, errUnauthenticated("missing session token")
		}
		userID, err := g.sessions.Verify(token)
		if err != nil {
			return nil, err
		}
		return &auth.Identity{UserID: userID}, nil

	case authBot:
		if token == "" {
			return nil, errUnauthenticated("missing bot token")
		}
		bot, err := g.botAuth.Authenticate(r.Context(), token)
		if err != nil {
			return nil, err
		}
		return &auth.Identity{Bot: bot}, nil

	case authEither:
		if token == "" {
			return nil, errUnauthenticated("missing credentials")
		}
		// Bot tokens are "<id>:<secret>"; session JWTs never carry a colon.
		if strings.Contains(token, ":") {
			bot, err := g.botAuth.Authenticate(r.Context(), token)
			if err != nil {
				return nil, err
			}
			return &auth.Identity{Bot: bot}, nil
		}
		userID, err := g.sessions.Verify(token)
		if err != nil {
			return nil, err
		}
		return &auth.Identity{UserID: userID}, nil
	}

	return nil, errUnauthenticated("unsupported auth mode")
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// bind decodes the JSON body into v and runs struct validation. An
// empty body binds the zero value, for operations without parameters.
func (g *Gateway) bind(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return g.check(v)
		}
		return errValidation("malformed request body")
	}
	return g.check(v)
}

func (g *Gateway) check(v any) error {
	if err := g.validate.Struct(v); err != nil {
		var invalid *validator.InvalidValidationError
		if errors.As(err, &invalid) {
			return errValidation("invalid request")
		}
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return errValidation(fmt.Sprintf("field %s failed %s validation", f.Field(), f.Tag()))
		}
		return errValidation(err.Error())
	}
	return nil
}

// envelope is the uniform response wrapper.
type envelope struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

func (g *Gateway) writeResult(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(envelope{OK: true, Result: result}); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, opName string, err error) {
	apiErr := mapError(err)
	if apiErr.Code == CodeInternal {
		g.logger.Error("operation failed", "operation", opName, "error", err)
	} else {
		g.logger.Debug("operation rejected", "operation", opName, "code", apiErr.Code)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(apiErr.Code))
	if encErr := json.NewEncoder(w).Encode(envelope{OK: false, Error: apiErr}); encErr != nil {
		g.logger.Error("encoding error response", "error", encErr)
	}
}
