package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/onsitehq/leadq/internal/cli/appctx"
	"github.com/onsitehq/leadq/internal/config"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/ingest"
	"github.com/onsitehq/leadq/internal/store"
)

// maxUploadBytes caps a POST /v1/uploads body.
const maxUploadBytes = 64 << 20

// DaemonOptions configures the leadqd daemon.
type DaemonOptions struct {
	Addr   string
	Unix   string
	Token  string
	DBPath string
}

// ServeDaemon starts the leadqd daemon and blocks until SIGINT or SIGTERM.
func ServeDaemon(opts DaemonOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.Token == "" {
		opts.Token = cfg.DaemonToken
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := appctx.New(ctx, cfg, appctx.DefaultOptions())
	if err != nil {
		return err
	}
	defer app.Close()

	server := newDaemonServer(app, opts.Token)
	httpServer := &http.Server{
		Handler:      server.router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	var listener net.Listener
	if opts.Unix != "" {
		_ = os.Remove(opts.Unix)
		listener, err = net.Listen("unix", opts.Unix)
		if err != nil {
			return fmt.Errorf("failed to listen on unix socket: %w", err)
		}
	} else {
		addr := opts.Addr
		if addr == "" {
			addr = cfg.DaemonAddr
		}
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", addr, err)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(listener)
	}()
	app.Logger.WithFields(map[string]interface{}{
		"addr":    listener.Addr().String(),
		"backend": cfg.Backend,
	}).Info("leadqd listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	app.Logger.Info("leadqd shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

type daemonServer struct {
	app   *appctx.App
	token string
}

func newDaemonServer(app *appctx.App, token string) *daemonServer {
	return &daemonServer{app: app, token: token}
}

func (s *daemonServer) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.withAuth)

	r.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)

	// count must be registered before {id}
	r.HandleFunc("/v1/leads", s.handleLeadsList).Methods(http.MethodGet)
	r.HandleFunc("/v1/leads/count", s.handleLeadsCount).Methods(http.MethodGet)
	r.HandleFunc("/v1/leads/{id}", s.handleLeadGet).Methods(http.MethodGet)

	r.HandleFunc("/v1/uploads", s.handleUploadsList).Methods(http.MethodGet)
	r.HandleFunc("/v1/uploads", s.handleUploadCreate).Methods(http.MethodPost)
	r.HandleFunc("/v1/phone-merges", s.handlePhoneMergesList).Methods(http.MethodGet)
	r.HandleFunc("/v1/summary", s.handleSummary).Methods(http.MethodGet)
	r.HandleFunc("/v1/data", s.handleClear).Methods(http.MethodDelete)

	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	})
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("not found"))
	})
	return r
}

func (s *daemonServer) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" {
			token := r.Header.Get("Authorization")
			if strings.HasPrefix(token, "Bearer ") {
				token = strings.TrimPrefix(token, "Bearer ")
			}
			if token == "" {
				token = r.Header.Get("X-Leadq-Token")
			}
			if token != s.token {
				s.writeError(w, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func (s *daemonServer) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *daemonServer) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]interface{}{
		"message": err.Error(),
	})
}

// queryInt reads a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func (s *daemonServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.Store.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"backend": s.app.Config.Backend,
		"leads":   n,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *daemonServer) handleLeadsList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	q := r.URL.Query()
	leads, next, err := s.app.Store.ListLeads(r.Context(), store.ListOptions{
		Limit:  limit,
		Cursor: q.Get("cursor"),
		Sort:   q.Get("sort"),
		Status: q.Get("status"),
		Source: q.Get("source"),
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if leads == nil {
		leads = []*domain.Lead{}
	}
	s.writeJSON(w, http.StatusOK, leadPage{Leads: leads, NextCursor: next})
}

func (s *daemonServer) handleLeadsCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.Store.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *daemonServer) handleLeadGet(w http.ResponseWriter, r *http.Request) {
	lead, err := lookupLead(r.Context(), s.app.Store, mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, lead)
}

func (s *daemonServer) handleUploadsList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	batches, err := s.app.Store.ListUploads(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if batches == nil {
		batches = []*domain.UploadBatch{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"uploads": batches})
}

func (s *daemonServer) handlePhoneMergesList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	merges, err := s.app.Store.ListPhoneMerges(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if merges == nil {
		merges = []*domain.PhoneMerge{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"phone_merges": merges})
}

func (s *daemonServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") != ""
	sum, cached, err := s.app.Insights.Summary(r.Context(), refresh)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("X-Leadq-Cache", map[bool]string{true: "hit", false: "miss"}[cached])
	s.writeJSON(w, http.StatusOK, sum)
}

// uploadFormat picks the body format from ?format=, then the file name,
// then the content type.
func uploadFormat(r *http.Request, filename string) ingest.Format {
	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "json", "ndjson":
		return ingest.FormatJSON
	case "csv":
		return ingest.FormatCSV
	}
	if filepath.Ext(filename) != "" {
		return ingest.DetectFormat(filename)
	}
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		return ingest.FormatJSON
	}
	return ingest.FormatCSV
}

type uploadResponse struct {
	Warnings []string    `json:"warnings"`
	Summary  interface{} `json:"summary"`
	Changes  interface{} `json:"changes,omitempty"`
}

func (s *daemonServer) handleUploadCreate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filename := q.Get("filename")
	if filename == "" {
		filename = "upload"
	}
	source := s.app.Config.Source(q.Get("source"))

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	rows, err := ingest.Read(data, uploadFormat(r, filename))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	resp := uploadResponse{Warnings: ingest.Check(rows)}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}

	if q.Get("dry_run") != "" {
		plan, err := s.app.Engine.Plan(r.Context(), rows, filename, source)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		resp.Summary, resp.Changes = plan.Summary, plan.Changes
		s.writeJSON(w, http.StatusOK, resp)
		return
	}

	sum, err := s.app.Engine.Upload(r.Context(), rows, filename, source)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.app.AfterUpload(r.Context(), filename, source, sum)
	resp.Summary = sum
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *daemonServer) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.app.Store.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.app.AfterClear(r.Context())
	s.app.Logger.Info("data cleared via daemon")
	s.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
