package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/netutil"

	"fundchain/core"
	"fundchain/core/types"
	"fundchain/integrations/audit"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// AuditQuerier reads the committed event index. *audit.Store satisfies it.
type AuditQuerier interface {
	Query(ctx context.Context, f audit.Filter) ([]audit.Record, error)
}

// Config wires the HTTP API.
type Config struct {
	Executor    *core.Executor
	Audit       AuditQuerier
	Logger      *slog.Logger
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	DevMode     bool
	ServiceName string
	// OriginPatterns restricts websocket origins. Empty allows same-origin only.
	OriginPatterns []string
	// Journal backs stream replay from a sequence cursor. Optional.
	Journal EventReplayer
	// MaxConnections caps concurrent connections. Zero means unlimited.
	MaxConnections int
}

// Server exposes the crowdfunding executor over HTTP.
type Server struct {
	exec           *core.Executor
	audit          AuditQuerier
	logger         *slog.Logger
	auth           *authenticator
	limiter        *rateLimiter
	hub            *Hub
	devMode        bool
	serviceName    string
	originPatterns []string
	replayer       EventReplayer
	maxConns       int
	handler        http.Handler
}

// NewServer builds the router. The returned server's Hub must be registered
// with the executor for the event stream to receive anything.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Executor == nil {
		return nil, errors.New("rpc: executor required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rpc")
	name := cfg.ServiceName
	if name == "" {
		name = "fundd"
	}
	s := &Server{
		exec:           cfg.Executor,
		audit:          cfg.Audit,
		logger:         logger,
		auth:           newAuthenticator(cfg.Auth, logger),
		limiter:        newRateLimiter(cfg.RateLimit),
		hub:            NewHub(),
		devMode:        cfg.DevMode,
		serviceName:    name,
		originPatterns: cfg.OriginPatterns,
		replayer:       cfg.Journal,
		maxConns:       cfg.MaxConnections,
	}
	s.handler = otelhttp.NewHandler(s.routes(), name)
	return s, nil
}

// Handler returns the instrumented root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Hub returns the websocket fan-out sink.
func (s *Server) Hub() *Hub { return s.hub }

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, listener)
}

// ServeListener serves on an existing listener.
func (s *Server) ServeListener(ctx context.Context, listener net.Listener) error {
	if s.maxConns > 0 {
		listener = netutil.LimitListener(listener, s.maxConns)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("rpc: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(observe(s.logger))
	r.Use(s.limiter.middleware)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", s.handleInfo)

		r.Route("/tokens", func(r chi.Router) {
			r.Get("/", s.handleListTokens)
			r.Get("/{token}", s.handleTokenSupported)
			r.With(s.auth.middleware).Post("/", s.handleAddToken)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Get("/", s.handleListProjects)
			r.With(s.auth.middleware).Post("/", s.handleCreateProject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetProject)
				r.Get("/thresholds", s.handleListThresholds)
				r.Get("/thresholds/{index}", s.handleGetThreshold)
				r.Get("/thresholds/{index}/ballots/{voter}", s.handleGetBallot)
				r.Get("/donations/{donor}", s.handleGetDonation)

				r.Group(func(r chi.Router) {
					r.Use(s.auth.middleware)
					r.Post("/status", s.handleUpdateStatus)
					r.Post("/cooldown", s.handleUpdateCooldown)
					r.Post("/fee", s.handleSetFee)
					r.Post("/donations", s.handleDonate)
					r.Post("/votes", s.handleVote)
					r.Post("/votes/end", s.handleEndVoting)
					r.Post("/withdraw", s.handleWithdraw)
					r.Post("/transfer", s.handleTransfer)
				})
			})
		})

		r.Route("/fees/{token}", func(r chi.Router) {
			r.Get("/", s.handleFeesAvailable)
			r.With(s.auth.middleware).Post("/withdraw", s.handleWithdrawFees)
		})

		r.Route("/ledger", func(r chi.Router) {
			r.Get("/balances/{token}/{owner}", s.handleBalance)
			r.Get("/allowances/{token}/{owner}/{spender}", s.handleAllowance)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.middleware)
				r.Post("/approve", s.handleApprove)
				r.Post("/mint", s.handleMint)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/roles/{role}", s.handleRoleMembers)
			r.Get("/pauses/{module}", s.handlePauseStatus)
			r.Group(func(r chi.Router) {
				r.Use(s.auth.middleware)
				r.Post("/pause", s.handlePause)
				r.Post("/unpause", s.handleUnpause)
				r.Post("/roles/grant", s.handleGrantRole)
				r.Post("/roles/revoke", s.handleRevokeRole)
			})
		})

		r.Get("/events", s.handleQueryEvents)
		r.Get("/events/stream", s.handleStream)
	})
	return r
}

// call runs fn as one executor call on behalf of the authenticated caller
// and renders the committed events.
func (s *Server) call(w http.ResponseWriter, r *http.Request, name string, fn func(ctx *core.Context, caller [20]byte) (interface{}, error)) {
	caller, ok := callerFrom(r.Context())
	if !ok {
		writeProblem(w, r, http.StatusUnauthorized, "missing_token", "missing caller")
		return
	}
	var result interface{}
	committed, err := s.exec.Execute(r.Context(), name, func(ctx *core.Context) error {
		out, err := fn(ctx, caller)
		result = out
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CallResult{
		Root:   rootOf(committed, s.exec),
		Events: eventViews(committed),
		Result: result,
	})
}

func rootOf(committed []types.CommittedEvent, exec *core.Executor) string {
	if len(committed) > 0 {
		return committed[len(committed)-1].Root
	}
	return exec.Root().Hex()
}

// view runs fn against committed state and writes its result.
func (s *Server) view(w http.ResponseWriter, r *http.Request, fn func(ctx *core.Context) (interface{}, error)) {
	var result interface{}
	err := s.exec.View(func(ctx *core.Context) error {
		out, err := fn(ctx)
		result = out
		return err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, errBadRequest) {
			return err
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func uintParam(r *http.Request, name string) (uint64, error) {
	raw := chi.URLParam(r, name)
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", errBadRequest, name)
	}
	return v, nil
}

func accountParam(r *http.Request, name string) ([20]byte, error) {
	var acct Account
	raw, _ := json.Marshal(chi.URLParam(r, name))
	if err := acct.UnmarshalJSON(raw); err != nil {
		return [20]byte{}, fmt.Errorf("%w (%s)", err, name)
	}
	return acct, nil
}

func queryUint(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: query %s must be an unsigned integer", errBadRequest, name)
	}
	return v, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "root": s.exec.Root().Hex()})
}
