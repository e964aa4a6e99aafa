package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/valyala/fastjson"

	"github.com/coffersTech/nanorule/internal/engine"
	"github.com/coffersTech/nanorule/internal/jobs"
	"github.com/coffersTech/nanorule/internal/pkg/ruledsl"
	"github.com/coffersTech/nanorule/internal/ruleset"
	"github.com/coffersTech/nanorule/internal/storage"
)

// jsonOverhead is the room left for the JSON envelope around the text of an
// analyze request.
const jsonOverhead = 64 << 10

// maxEscapeGrowth is how much JSON escaping can grow a byte of text: a
// control byte becomes \u00XX.
const maxEscapeGrowth = 6

// Config wires the services behind the API.
type Config struct {
	Analyzer *engine.Analyzer
	Compiler *engine.RuleCompiler
	Rules    *ruleset.Set
	Pool     *jobs.Pool
	Store    *storage.ResultStore
	Stats    *engine.StatsCollector
	Read     storage.ReadOptions
	Logger   *slog.Logger
}

// APIServer exposes analysis submission, results and rule inspection over
// HTTP.
type APIServer struct {
	analyzer *engine.Analyzer
	compiler *engine.RuleCompiler
	rules    *ruleset.Set
	pool     *jobs.Pool
	store    *storage.ResultStore
	stats    *engine.StatsCollector
	read     storage.ReadOptions
	logger   *slog.Logger

	srv    *http.Server
	parser fastjson.ParserPool
}

// NewAPIServer creates the server. Stats may be nil.
func NewAPIServer(cfg Config) *APIServer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Read.MaxBytes <= 0 {
		cfg.Read.MaxBytes = storage.DefaultMaxContentBytes
	}
	s := &APIServer{
		analyzer: cfg.Analyzer,
		compiler: cfg.Compiler,
		rules:    cfg.Rules,
		pool:     cfg.Pool,
		store:    cfg.Store,
		stats:    cfg.Stats,
		read:     cfg.Read,
		logger:   cfg.Logger,
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the API routes.
func (s *APIServer) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		middleware.RequestID,
		middleware.Recoverer,
	)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/analysis", s.handleListAnalyses)
		r.Get("/analysis/{fileID}", s.handleGetAnalysis)
		r.Delete("/analysis/{fileID}", s.handleDeleteAnalysis)
		r.Get("/rules", s.handleRules)
		r.Post("/rules/check", s.handleCheckRule)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// Start runs the HTTP server until Shutdown is called. A Shutdown that
// happens first makes Start return nil at once.
func (s *APIServer) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *APIServer) Serve(ln net.Listener) error {
	s.logger.Info("api server listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleAnalyze accepts either a JSON body {"file_id", "text"} or the raw
// (optionally zstd-compressed) file content with ?file_id=.
func (s *APIServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var fileID, text string
	if isJSON(r.Header.Get("Content-Type")) {
		body, _, err := storage.ReadContent(r.Body, storage.ReadOptions{
			MaxBytes:  maxEscapeGrowth*s.read.MaxBytes + jsonOverhead,
			ChunkSize: s.read.ChunkSize,
			Strict:    true,
		})
		if err != nil {
			s.readError(w, err)
			return
		}

		p := s.parser.Get()
		defer s.parser.Put(p)
		v, err := p.Parse(body)
		if err != nil {
			http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
			return
		}
		if !v.Exists("text") {
			http.Error(w, "text is required", http.StatusBadRequest)
			return
		}
		fileID = string(v.GetStringBytes("file_id"))
		text = string(v.GetStringBytes("text"))
		if len(text) > s.read.MaxBytes {
			s.readError(w, storage.ErrContentTooLarge)
			return
		}
	} else {
		opts := s.read
		opts.Strict = true
		var err error
		text, _, err = storage.ReadContent(r.Body, opts)
		if err != nil {
			s.readError(w, err)
			return
		}
		fileID = r.URL.Query().Get("file_id")
	}

	digest := storage.Digest(text)
	if fileID == "" {
		fileID = digest[:16]
	}

	if meta, err := s.store.Meta(fileID); err == nil && meta != nil &&
		meta.Digest == digest && meta.RulesetVersion == s.rules.Version() {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":   jobs.StateDone,
			"file_id": fileID,
			"reused":  true,
		})
		return
	}

	job, err := s.pool.Submit(fileID, s.analysisTask(fileID, text, digest))
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		writeJSON(w, http.StatusOK, map[string]any{
			"state":   "running",
			"file_id": fileID,
			"job":     job,
		})
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
	}
}

func (s *APIServer) analysisTask(fileID, text, digest string) jobs.Task {
	return func(ctx context.Context) error {
		rules, version := s.rules.Rules()
		report, err := s.analyzer.Analyze(ctx, fileID, text, rules)
		if err != nil {
			return err
		}
		report.Digest = digest
		report.RulesetVersion = version
		if s.stats != nil {
			s.stats.Record(report)
		}
		if err := s.store.Put(report); err != nil {
			return fmt.Errorf("store report %s: %w", fileID, err)
		}
		s.logger.Info("analysis stored",
			"file", fileID,
			"issues", report.Summary.TotalIssues,
			"high", report.Summary.HighSeverity,
			"duration", report.Duration)
		return nil
	}
}

func (s *APIServer) readError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrContentTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	s.logger.Warn("failed to read request body", "error", err)
	http.Error(w, "Failed to read body", http.StatusBadRequest)
}

func (s *APIServer) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "fileID")

	job, tracked := s.pool.Registry().Get(fileID)
	if tracked && job.Active() {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":   job.State,
			"file_id": fileID,
			"job":     job,
		})
		return
	}

	report, err := s.store.Get(fileID)
	if err != nil {
		s.logger.Error("failed to load report", "file", fileID, "error", err)
		http.Error(w, "Failed to load report", http.StatusInternalServerError)
		return
	}
	if report != nil {
		writeJSON(w, http.StatusOK, report)
		return
	}
	if tracked && job.State == jobs.StateFailed {
		writeJSON(w, http.StatusOK, map[string]any{
			"state":   job.State,
			"file_id": fileID,
			"job":     job,
		})
		return
	}
	http.Error(w, "Analysis not found", http.StatusNotFound)
}

func (s *APIServer) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	metas, err := s.store.List()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

func (s *APIServer) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(chi.URLParam(r, "fileID")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) handleRules(w http.ResponseWriter, r *http.Request) {
	rules, version := s.rules.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"version": version,
		"rules":   rules,
	})
}

type diagnosticView struct {
	Column  int    `json:"column"`
	Message string `json:"message"`
}

type checkResponse struct {
	Valid       bool             `json:"valid"`
	Tokens      []string         `json:"tokens"`
	AST         string           `json:"ast"`
	Phrases     []string         `json:"phrases"`
	Diagnostics []diagnosticView `json:"diagnostics"`
}

func (s *APIServer) handleCheckRule(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, _, err := storage.ReadContent(r.Body, storage.ReadOptions{MaxBytes: jsonOverhead, Strict: true})
	if err != nil {
		s.readError(w, err)
		return
	}

	p := s.parser.Get()
	defer s.parser.Put(p)
	v, err := p.Parse(body)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, checkExpression(string(v.GetStringBytes("dsl"))))
}

func checkExpression(expr string) checkResponse {
	tokens, diags := ruledsl.Tokenize(expr)
	node, parseDiags := ruledsl.Parse(tokens)
	diags = append(diags, parseDiags...)

	resp := checkResponse{
		Valid:       len(diags) == 0,
		Tokens:      make([]string, len(tokens)),
		AST:         node.String(),
		Phrases:     ruledsl.Phrases(node),
		Diagnostics: make([]diagnosticView, len(diags)),
	}
	for i, tok := range tokens {
		resp.Tokens[i] = tok.String()
	}
	for i, d := range diags {
		resp.Diagnostics[i] = diagnosticView{Column: d.Pos + 1, Message: d.Message}
	}
	if resp.Phrases == nil {
		resp.Phrases = []string{}
	}
	return resp
}

func (s *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"cache":           s.compiler.Stats(),
		"ruleset_version": s.rules.Version(),
		"jobs": map[string]int{
			"active":  s.pool.Registry().Active(),
			"pending": s.pool.Pending(),
		},
	}
	if s.stats != nil {
		resp["totals"] = s.stats.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.TrimSpace(contentType), "application/json")
}
