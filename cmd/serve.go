package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/document"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/store"
)

const shutdownTimeout = 15 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve invoice extraction over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		srv := &invoiceServer{
			proc:    env.Orchestrator,
			loader:  env.Loader,
			store:   env.Store,
			runID:   uuid.New().String(),
			maxBody: cfg.Server.MaxBodyBytes,
		}
		if env.Store != nil {
			run, err := env.Store.CreateRun(ctx, "serve")
			if err != nil {
				return eris.Wrap(err, "create run")
			}
			srv.runID = run.ID
			defer func() {
				if err := env.Store.CompleteRun(context.Background(), srv.runID, srv.snapshot()); err != nil {
					zap.L().Warn("complete serve run", zap.Error(err))
				}
			}()
		}

		port := resolvePort(servePort, cfg.Server.Port)
		return startServer(ctx, buildMux(srv, cfg.Server.AllowedOrigins), port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort returns the flag port when set, otherwise the config port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer runs handler until ctx is cancelled, then shuts down gracefully.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}

type invoiceProcessor interface {
	ProcessInvoice(ctx context.Context, inv *model.Invoice) *pipeline.Result
	Unreadable(id string, kind model.ErrorKind, detail string) *pipeline.Result
}

type invoiceLoader interface {
	FromBytes(ctx context.Context, id, source string, media model.MediaType, data []byte) (*model.Invoice, error)
}

// invoiceServer processes submitted invoices under one long-lived run.
type invoiceServer struct {
	proc    invoiceProcessor
	loader  invoiceLoader
	store   store.Store
	runID   string
	maxBody int64

	mu     sync.Mutex
	latest map[string]*pipeline.Result
}

// invoiceRequest is the body of POST /v1/invoices. Either Text or Content
// (base64 in JSON) is set; Content needs MediaType or a FileName to infer it.
type invoiceRequest struct {
	ID        string          `json:"id"`
	FileName  string          `json:"file_name,omitempty"`
	MediaType model.MediaType `json:"media_type,omitempty"`
	Text      string          `json:"text,omitempty"`
	Content   []byte          `json:"content,omitempty"`
}

type invoiceResponse struct {
	RunID   string                  `json:"run_id"`
	CostUSD float64                 `json:"cost_usd"`
	Report  *model.ValidationReport `json:"report"`
}

func buildMux(s *invoiceServer, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "run_id": s.runID})
	})
	r.Post("/v1/invoices", s.handleInvoice)
	r.Route("/v1/runs/{runID}", func(r chi.Router) {
		r.Get("/", s.handleRun)
		r.Get("/reports", s.handleReports)
		r.Get("/reports/{invoiceID}", s.handleReport)
	})
	return r
}

func (s *invoiceServer) handleInvoice(w http.ResponseWriter, r *http.Request) {
	body := r.Body
	if s.maxBody > 0 {
		body = http.MaxBytesReader(w, r.Body, s.maxBody)
	}

	var req invoiceRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	media, data, err := req.document()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	ctx := r.Context()
	var res *pipeline.Result
	inv, err := s.loader.FromBytes(ctx, req.ID, "http", media, data)
	if err != nil {
		zap.L().Warn("serve: load failed", zap.String("invoice", req.ID), zap.Error(err))
		res = s.proc.Unreadable(req.ID, model.KindInputUnreadable, err.Error())
	} else {
		res = s.proc.ProcessInvoice(ctx, inv)
	}

	s.record(ctx, res)
	writeJSON(w, http.StatusOK, invoiceResponse{RunID: s.runID, CostUSD: res.CostUSD, Report: res.Report})
}

func (req invoiceRequest) document() (model.MediaType, []byte, error) {
	switch {
	case len(req.Content) > 0:
		media := req.MediaType
		if media == "" && req.FileName != "" {
			media, _ = document.MediaTypeOf(req.FileName)
		}
		if media == "" {
			return "", nil, eris.New("media_type or file_name is required with content")
		}
		return media, req.Content, nil
	case req.Text != "":
		return model.MediaText, []byte(req.Text), nil
	default:
		return "", nil, eris.New("text or content is required")
	}
}

// record keeps res as the latest result for its invoice and persists it.
// Resubmitting an invoice ID replaces the earlier result. Persistence
// failures are logged; the caller still gets its report.
func (s *invoiceServer) record(ctx context.Context, res *pipeline.Result) {
	s.mu.Lock()
	if s.latest == nil {
		s.latest = make(map[string]*pipeline.Result)
	}
	s.latest[res.Report.InvoiceID] = res
	s.mu.Unlock()

	if s.store == nil {
		return
	}
	err := s.store.SaveReports(ctx, s.runID, storedReports(s.runID, []*pipeline.Result{res}))
	if err != nil {
		zap.L().Warn("serve: save report", zap.String("invoice", res.Report.InvoiceID), zap.Error(err))
	}
}

// snapshot summarises the latest result of every invoice seen so far.
func (s *invoiceServer) snapshot() model.BatchSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pipeline.Summarize(slices.Collect(maps.Values(s.latest)))
}

func (s *invoiceServer) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *invoiceServer) handleReports(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	ctx := r.Context()
	runID := chi.URLParam(r, "runID")
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		writeStoreError(w, err)
		return
	}
	reports, err := s.store.ListReports(ctx, runID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if reports == nil {
		reports = []model.StoredReport{}
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *invoiceServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	sr, err := s.store.GetReport(r.Context(), chi.URLParam(r, "runID"), chi.URLParam(r, "invoiceID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

func (s *invoiceServer) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run store disabled")
		return false
	}
	return true
}

func writeStoreError(w http.ResponseWriter, err error) {
	if store.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("serve: store", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "store error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
