package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/PixelMuse/internal/service"
)

const maxBodyBytes = 64 << 20

// Services are the core components exposed to the browser UI.
type Services struct {
	Plans        *service.PlanCatalog
	Templates    *service.TemplateCatalog
	Accounts     *service.AccountService
	Quota        *service.GuestQuota
	Entitlements *service.Entitlements
	Credentials  *service.CredentialService
	Generation   *service.GenerationService
	History      *service.HistoryService
}

type Options struct {
	Addr          string
	AdminUsername string
	AdminPassword string
	// WriteTimeout must cover a full generation round trip.
	WriteTimeout time.Duration
}

type Server struct {
	opts   Options
	log    *slog.Logger
	svc    Services
	router *chi.Mux
}

func NewServer(opts Options, log *slog.Logger, svc Services) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		opts:   opts,
		log:    log,
		svc:    svc,
		router: r,
	}

	r.Get("/plans", s.handleListPlans)
	r.Get("/templates", s.handleListTemplates)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
	})
	r.Get("/me", s.handleMe)
	r.Patch("/me", s.handleUpdateProfile)
	r.Get("/status", s.handleStatus)
	r.Post("/generate", s.handleGenerate)
	r.Post("/edit", s.handleEdit)
	r.Get("/history", s.handleHistory)
	r.Post("/history/{index}/select", s.handleSelect)
	r.Get("/records", s.handleRecords)
	r.Route("/credential", func(r chi.Router) {
		r.Put("/", s.handleSaveCredential)
		r.Delete("/", s.handleClearCredential)
		r.Post("/validate", s.handleValidateCredential)
	})
	if opts.AdminPassword != "" {
		r.Group(func(protected chi.Router) {
			protected.Use(s.basicAuthMiddleware())
			protected.Put("/admin/plan", s.handleChangePlan)
		})
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.opts.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("studio api listening", "addr", s.opts.Addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.opts.AdminUsername || pass != s.opts.AdminPassword {
				w.Header().Set("WWW-Authenticate", `Basic realm="pixelmuse"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
