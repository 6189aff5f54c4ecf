// Package server is the local HTTP gateway the browser front end talks to:
// it accepts the multipart generation form, exposes session status with
// presenter-derived progress, proxies result media for same-origin viewing,
// and serves reference-image previews and a result archive.
package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/fpang/rodin-studio/internal/config"
	"github.com/fpang/rodin-studio/internal/generate"
	"github.com/fpang/rodin-studio/internal/rodin"
)

// Server wires the pipeline behind the HTTP routes.
type Server struct {
	cfg      config.Config
	client   *rodin.Client
	orch     *generate.Orchestrator
	sessions *sessionStore

	// allowedHosts are the remote hosts the media proxy may fetch from.
	allowedHosts map[string]bool
}

// New builds the gateway. The proxy allow-list is the API host plus any
// configured extra asset hosts.
func New(cfg config.Config, client *rodin.Client) *Server {
	allowed := make(map[string]bool)
	if u, err := url.Parse(cfg.BaseURL); err == nil && u.Host != "" {
		allowed[strings.ToLower(u.Host)] = true
	}
	for _, h := range cfg.ProxyHosts {
		allowed[strings.ToLower(h)] = true
	}

	return &Server{
		cfg:          cfg,
		client:       client,
		orch:         generate.New(client, cfg.PollInterval, cfg.PollMaxTries, "/api/proxy"),
		sessions:     newSessionStore(),
		allowedHosts: allowed,
	}
}

// Router returns the chi handler with the full route set.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Route("/generate/{id}", func(r chi.Router) {
			r.Get("/", s.handleStatus)
			r.Delete("/", s.handleCancel)
			r.Get("/thumbnail/{index}", s.handleThumbnail)
			r.Get("/archive", s.handleArchive)
		})
		r.Get("/proxy", s.handleProxy)
	})

	return r
}

// requestLogger emits one structured event per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("requestId", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// proxyAllowed reports whether the media proxy may fetch the given URL.
func (s *Server) proxyAllowed(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return false
	}
	return s.allowedHosts[strings.ToLower(u.Host)]
}
