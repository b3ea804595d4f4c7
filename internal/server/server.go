// Package server exposes the normalized catalog over HTTP: JSON endpoints
// for channels, categories, VOD, series, and now/next lookups, plus
// Prometheus metrics and a health endpoint.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catalogd/catalogd/internal/cache"
	"github.com/catalogd/catalogd/internal/domain"
	"github.com/catalogd/catalogd/internal/errs"
	"github.com/catalogd/catalogd/internal/repo"
)

type Server struct {
	Addr string
	Repo *repo.Repository

	started time.Time
}

func New(addr string, r *repo.Repository) *Server {
	return &Server{Addr: addr, Repo: r, started: time.Now()}
}

// Router wires all routes. Split out from Run so tests can drive the
// handler without a listener.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/channels", s.handleChannels).Methods(http.MethodGet)
	api.HandleFunc("/channels/{id}", s.handleChannel).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.handleCategories).Methods(http.MethodGet)
	api.HandleFunc("/categories/{id}/channels", s.handleCategoryChannels).Methods(http.MethodGet)
	api.HandleFunc("/vod", s.handleVod).Methods(http.MethodGet)
	api.HandleFunc("/vod/{id}", s.handleVodInfo).Methods(http.MethodGet)
	api.HandleFunc("/series", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/series/{id}", s.handleSeriesInfo).Methods(http.MethodGet)
	api.HandleFunc("/guide/{tvgID}", s.handleNowNext).Methods(http.MethodGet)
	api.HandleFunc("/profiles", s.handleProfiles).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{id}/activate", s.handleActivate).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	return logRequests(r)
}

// Run serves until ctx is cancelled, then drains with a 10s grace period.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.Addr, Handler: s.Router()}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", s.Addr)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Print("server: shutting down ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("server: shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

// resultResponse wraps catalog payloads with staleness so clients can tell a
// fresh snapshot from a degraded one.
type resultResponse struct {
	Data    any    `json:"data"`
	Stale   bool   `json:"stale,omitempty"`
	Warning string `json:"warning,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	p, err := s.Repo.ActiveProfile()
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"no_active_profile"}`))
		return
	}
	body, _ := json.Marshal(map[string]any{
		"status":         "ok",
		"active_profile": p.Name,
		"uptime":         time.Since(s.started).Round(time.Second).String(),
	})
	_, _ = w.Write(body)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	res, err := s.Repo.Channels(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res.Data, res.Stale, res.Warning)
}

func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.Repo.Channel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	res, err := s.Repo.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res.Data, res.Stale, res.Warning)
}

func (s *Server) handleCategoryChannels(w http.ResponseWriter, r *http.Request) {
	chans, err := s.Repo.ChannelsByCategory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chans)
}

func (s *Server) handleVod(w http.ResponseWriter, r *http.Request) {
	res, err := s.Repo.VodItems(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res.Data, res.Stale, res.Warning)
}

func (s *Server) handleVodInfo(w http.ResponseWriter, r *http.Request) {
	item, err := s.Repo.VodInfo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	res, err := s.Repo.SeriesList(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeResult(w, res.Data, res.Stale, res.Warning)
}

func (s *Server) handleSeriesInfo(w http.ResponseWriter, r *http.Request) {
	sr, err := s.Repo.SeriesInfo(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

func (s *Server) handleNowNext(w http.ResponseWriter, r *http.Request) {
	summary, err := s.Repo.NowNext(r.Context(), mux.Vars(r)["tvgID"])
	if err != nil {
		writeError(w, err)
		return
	}
	if summary == nil || (summary.Current == nil && summary.Next == nil) {
		writeError(w, errs.New(errs.NotFound, "no guide data for channel"))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	// Redact credentials on the way out.
	profiles := s.Repo.Profiles()
	out := make([]domain.Profile, 0, len(profiles))
	for _, p := range profiles {
		if p.Xtream != nil {
			creds := *p.Xtream
			creds.Password = "***"
			p.Xtream = &creds
		}
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	if err := s.Repo.SetActiveProfile(mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if kind := r.URL.Query().Get("kind"); kind != "" {
		if err := s.Repo.Refresh(r.Context(), cache.Kind(kind)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := s.Repo.RefreshAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeResult(w http.ResponseWriter, data any, stale bool, warning string) {
	writeJSON(w, http.StatusOK, resultResponse{Data: data, Stale: stale, Warning: warning})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch errs.KindOf(err) {
	case errs.NotFound:
		status = http.StatusNotFound
	case errs.Auth:
		status = http.StatusUnauthorized
	case errs.Timeout:
		status = http.StatusGatewayTimeout
	case errs.Parse:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": string(errs.KindOf(err))})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggingResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lw, r)
		status := lw.status
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("http: %s %s status=%d bytes=%d dur=%s remote=%s",
			r.Method, r.URL.Path, status, lw.bytes, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}
