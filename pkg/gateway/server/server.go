package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prosperlabs/prosper/pkg/gateway/billing"
	"github.com/prosperlabs/prosper/pkg/gateway/config"
	"github.com/prosperlabs/prosper/pkg/gateway/handlers"
	"github.com/prosperlabs/prosper/pkg/gateway/lifecycle"
	"github.com/prosperlabs/prosper/pkg/gateway/live"
	"github.com/prosperlabs/prosper/pkg/gateway/live/sessions"
	"github.com/prosperlabs/prosper/pkg/gateway/metrics"
	"github.com/prosperlabs/prosper/pkg/gateway/mw"
	"github.com/prosperlabs/prosper/pkg/gateway/store"
)

// Deps carries the injected collaborators so main and tests construct the
// server the same way.
type Deps struct {
	Store   *store.Store
	Billing billing.Client
	Backend live.Backend
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	store     *store.Store
	billing   billing.Client
	backend   live.Backend
	keys      *live.Keybank
	sessions  *sessions.Tracker
	lifecycle *lifecycle.Lifecycle
	metrics   *metrics.Metrics
}

func New(cfg config.Config, logger *slog.Logger, deps Deps) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		store:     deps.Store,
		billing:   deps.Billing,
		backend:   deps.Backend,
		keys:      live.NewKeybank(),
		sessions:  sessions.NewTracker(),
		lifecycle: &lifecycle.Lifecycle{},
		metrics:   metrics.New("prosper"),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
	})
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	session := handlers.SessionHandler{
		Keys:    s.keys,
		TTL:     s.cfg.EphemeralKeyTTL,
		Logger:  s.logger,
		Metrics: s.metrics,
	}
	if s.store != nil {
		session.Usage = s.store
	}
	s.mux.Handle("GET /api/session", session)
	s.mux.Handle("/v1/realtime", handlers.LiveHandler{
		Config:    s.cfg,
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		Keys:      s.keys,
		Backend:   s.backend,
		Metrics:   s.metrics,
	})

	s.mux.Handle("GET /api/prosper/dashboard", handlers.DashboardHandler{
		Store:  s.store,
		Logger: s.logger,
	})
	s.mux.Handle("POST /api/prosper/update-input", handlers.UpdateInputHandler{
		Store:        s.store,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	})

	actions := handlers.ActionsHandler{Store: s.store, MaxBodyBytes: s.cfg.MaxBodyBytes}
	s.mux.HandleFunc("GET /api/actions/list", actions.List)
	s.mux.HandleFunc("POST /api/actions/complete", actions.Complete)
	s.mux.HandleFunc("POST /api/actions/dismiss", actions.Dismiss)

	household := handlers.HouseholdHandler{Store: s.store}
	s.mux.HandleFunc("GET /api/household/init", household.Init)
	s.mux.HandleFunc("GET /api/household/switch", household.Switch)

	billingH := handlers.BillingHandler{
		Store:        s.store,
		Billing:      s.billing,
		Logger:       s.logger,
		MaxBodyBytes: s.cfg.MaxBodyBytes,
	}
	s.mux.HandleFunc("POST /api/billing/create-checkout-session", billingH.CreateCheckoutSession)
	s.mux.HandleFunc("POST /api/billing/create-portal-session", billingH.CreatePortalSession)
	s.mux.HandleFunc("GET /api/billing/confirm", billingH.Confirm)

	crm := handlers.CRMHandler{Store: s.store, MaxBodyBytes: s.cfg.MaxBodyBytes}
	s.mux.HandleFunc("GET /api/companies", crm.ListCompanies)
	s.mux.HandleFunc("POST /api/companies", crm.CreateCompany)
	s.mux.HandleFunc("GET /api/companies/{id}/contacts", crm.ListContacts)
	s.mux.HandleFunc("GET /api/companies/{id}/engagements", crm.ListEngagements)
	s.mux.HandleFunc("GET /api/engagements/{id}/people", crm.ListEngagementPeople)
	s.mux.HandleFunc("GET /api/interviews", crm.ListInterviews)
	s.mux.HandleFunc("POST /api/interviews/create", crm.CreateInterview)

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// authSkipped lists paths reachable without an API key: probes, the metrics
// scrape, and the live relay, which is authorized by its ephemeral key.
func authSkipped(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return strings.HasPrefix(path, "/v1/realtime")
}

func (s *Server) Handler() http.Handler {
	authed := mw.Auth(s.cfg, s.keys.Validate, s.mux)
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if authSkipped(r.URL.Path) {
			s.mux.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
	h = s.instrument(h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

func (s *Server) SetDraining() {
	s.lifecycle.SetDraining(true)
}

func (s *Server) WarnLiveSessionsDraining() {
	s.sessions.WarnAll("draining", "gateway is draining; this session will close soon")
}

func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	return s.sessions.Wait(ctx)
}

func (s *Server) CancelLiveSessions() {
	s.sessions.CancelAll()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The websocket upgrade needs the raw ResponseWriter (http.Hijacker).
		if strings.HasPrefix(r.URL.Path, "/v1/realtime") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		// Label by registered pattern, not raw path, to keep cardinality low.
		_, route := s.mux.Handler(r)
		if route == "" {
			route = "unmatched"
		}
		s.metrics.RecordRequest(route, r.Method, strconv.Itoa(sw.status), time.Since(start))
	})
}
