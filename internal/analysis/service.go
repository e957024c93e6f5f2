// Package analysis is the caller-facing surface of rlm. It ties the
// orchestrator, cache, storage backend, staleness detector and run ledger
// together behind the operations exposed by the CLI and the MCP server.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/rlm/internal/cache"
	"github.com/ShayCichocki/rlm/internal/config"
	"github.com/ShayCichocki/rlm/internal/delegate"
	"github.com/ShayCichocki/rlm/internal/embeddings"
	"github.com/ShayCichocki/rlm/internal/manifest"
	"github.com/ShayCichocki/rlm/internal/orchestrator"
	"github.com/ShayCichocki/rlm/internal/staleness"
	"github.com/ShayCichocki/rlm/internal/state"
	"github.com/ShayCichocki/rlm/internal/storage"
	"github.com/ShayCichocki/rlm/pkg/models"
)

// Failure kinds reported on a Response.
const (
	KindInvalidRequest  = "invalid_request"
	KindDelegation      = "delegation"
	KindStateCorruption = "state_corruption"
	KindStorage         = "storage"
	KindManifest        = "manifest"
)

// FocusGeneral is the focus used when a request names none.
const FocusGeneral = "general"

// DefaultSearchLimit is used when a search asks for a non-positive limit.
const DefaultSearchLimit = 5

// Request asks for an analysis of Path.
type Request struct {
	Path  string `json:"path"`
	Query string `json:"query"`
	// Focus narrows the analysis, e.g. "security". Empty means general.
	Focus string `json:"focus,omitempty"`
	// ForceRefresh skips the freshness short-circuit.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// Response reports the outcome of Analyze. Structured failures set Success
// false with Error and Kind; ceiling violations are returned as errors
// instead.
type Response struct {
	Success bool `json:"success"`
	// Fresh is set when a stored analysis was still current and nothing ran.
	Fresh        bool                   `json:"used_cache,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Result       *models.AnalysisResult `json:"result,omitempty"`
	Stats        models.Stats           `json:"stats"`
	RunID        string                 `json:"run_id,omitempty"`
	Resumed      bool                   `json:"resumed,omitempty"`
	RecordFile   string                 `json:"record_file,omitempty"`
	FilesTracked int                    `json:"files_tracked,omitempty"`
	Staleness    *staleness.Report      `json:"staleness_info,omitempty"`
	Error        string                 `json:"error,omitempty"`
	Kind         string                 `json:"kind,omitempty"`
}

func failure(kind string, err error) *Response {
	return &Response{Success: false, Kind: kind, Error: err.Error()}
}

// Service runs analyses for one working directory. Analyze calls are
// serialized; the checkpoint is shared per directory.
type Service struct {
	workDir    string
	cfg        *config.Config
	dispatcher orchestrator.Dispatcher
	backend    storage.Backend
	cache      *cache.Manager
	ledger     state.Ledger
	checkpts   state.CheckpointStore
	builder    *manifest.Builder
	detector   *staleness.Detector
	emitter    *orchestrator.EventEmitter
	logger     *slog.Logger
	now        func() time.Time

	mu sync.Mutex
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	dispatcher orchestrator.Dispatcher
	backend    storage.Backend
	embedder   storage.Embedder
	ledger     state.Ledger
	noLedger   bool
	emitter    *orchestrator.EventEmitter
	logger     *slog.Logger
	now        func() time.Time
}

// WithDispatcher overrides the dispatcher selected from the delegate config.
func WithDispatcher(d orchestrator.Dispatcher) Option {
	return func(o *serviceOptions) { o.dispatcher = d }
}

// WithBackend overrides the storage backend built by the factory.
func WithBackend(b storage.Backend) Option {
	return func(o *serviceOptions) { o.backend = b }
}

// WithEmbedder overrides the Ollama embedder offered to the storage factory.
func WithEmbedder(e storage.Embedder) Option {
	return func(o *serviceOptions) { o.embedder = e }
}

// WithLedger overrides the project run ledger.
func WithLedger(l state.Ledger) Option {
	return func(o *serviceOptions) { o.ledger = l }
}

// WithoutLedger runs without recording runs.
func WithoutLedger() Option {
	return func(o *serviceOptions) { o.noLedger = true }
}

// WithEventEmitter forwards orchestrator events to e.
func WithEventEmitter(e *orchestrator.EventEmitter) Option {
	return func(o *serviceOptions) { o.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *serviceOptions) { o.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) { o.now = now }
}

// New creates a Service rooted at workDir. Collaborators not supplied as
// options are built from cfg.
func New(ctx context.Context, cfg *config.Config, workDir string, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	o := &serviceOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.now == nil {
		o.now = time.Now
	}

	abs, err := filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("resolve work dir: %w", err)
	}

	s := &Service{
		workDir:  abs,
		cfg:      cfg,
		emitter:  o.emitter,
		logger:   o.logger,
		now:      o.now,
		builder:  manifest.NewBuilder(),
		checkpts: state.NewFileCheckpointStore(abs),
		cache: cache.New(cache.Config{
			WorkDir: abs,
			Enabled: cfg.Orchestrator.CacheEnabled,
			TTL:     cfg.Orchestrator.CacheTTL(),
			Now:     o.now,
		}),
	}

	s.dispatcher = o.dispatcher
	if s.dispatcher == nil {
		d, err := delegate.New(ctx, cfg.Delegate, o.logger)
		if err != nil {
			return nil, fmt.Errorf("create dispatcher: %w", err)
		}
		s.dispatcher = d
	}

	s.backend = o.backend
	if s.backend == nil {
		embedder := o.embedder
		if embedder == nil && cfg.Storage.VectorEnabled {
			e, err := embeddings.NewOllamaEmbedder(cfg.Storage.OllamaHost, cfg.Storage.EmbeddingModel)
			if err != nil {
				o.logger.Info("embedder unavailable", "error", err)
			} else {
				embedder = e
			}
		}
		s.backend = storage.NewBackend(ctx, storage.Config{
			Dir:           s.ragDir(),
			VectorEnabled: cfg.Storage.VectorEnabled,
			TextBackend:   cfg.Storage.TextBackend,
			Qdrant: storage.QdrantConfig{
				Address:    cfg.Storage.QdrantAddress,
				APIKey:     cfg.Storage.QdrantAPIKey,
				Collection: cfg.Storage.QdrantCollection,
			},
		}, embedder, o.logger)
	}
	s.detector = staleness.NewDetector(s.backend, s.builder, o.logger)

	switch {
	case o.noLedger:
	case o.ledger != nil:
		s.ledger = o.ledger
	default:
		db, err := state.OpenProject(abs)
		if err != nil {
			o.logger.Warn("run ledger unavailable", "error", err)
		} else {
			s.ledger = db
		}
	}

	if n, err := s.recovery().ReconcileOrphans(); err != nil {
		o.logger.Warn("reconcile runs", "error", err)
	} else if n > 0 {
		o.logger.Info("marked orphaned runs abandoned", "count", n)
	}
	return s, nil
}

// Close releases the storage backend and run ledger.
func (s *Service) Close() error {
	var errs []error
	if err := s.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close storage: %w", err))
	}
	if s.ledger != nil {
		if err := s.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
	}
	return errors.Join(errs...)
}

// WorkDir returns the directory the service operates in.
func (s *Service) WorkDir() string {
	return s.workDir
}

// Backend returns the storage backend in use.
func (s *Service) Backend() storage.Backend {
	return s.backend
}

// Cache returns the cache manager.
func (s *Service) Cache() *cache.Manager {
	return s.cache
}

// Checkpoints returns the directory's checkpoint store.
func (s *Service) Checkpoints() state.CheckpointStore {
	return s.checkpts
}

// Detector returns the staleness detector.
func (s *Service) Detector() *staleness.Detector {
	return s.detector
}

func (s *Service) ragDir() string {
	dir := s.cfg.Storage.RAGDir
	if dir == "" {
		dir = config.Default().Storage.RAGDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(s.workDir, dir)
}

func (s *Service) recovery() *state.RecoveryManager {
	var runs state.RunStore
	if s.ledger != nil {
		runs = s.ledger
	}
	return state.NewRecoveryManager(runs, s.checkpts)
}

// Analyze runs, resumes or short-circuits an analysis.
//
// When an interrupted run is checkpointed in the working directory it is
// resumed and the request's path and query are ignored.
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(req.Query) == "" {
		return failure(KindInvalidRequest, errors.New("query is required")), nil
	}
	if req.Path == "" {
		req.Path = "."
	}
	if req.Focus == "" {
		req.Focus = FocusGeneral
	}

	interrupted, err := s.recovery().CheckForInterrupted()
	if err != nil {
		var corrupt *state.CorruptCheckpointError
		if errors.As(err, &corrupt) {
			return failure(KindStateCorruption, &orchestrator.StateCorruptionError{Err: err}), nil
		}
		return nil, err
	}
	if interrupted != nil {
		s.logger.Info("resuming interrupted run", "run_id", interrupted.RunID, "path", interrupted.Path)
		if interrupted.Path != "" {
			req.Path = interrupted.Path
		}
		if interrupted.Run != nil {
			req.Query = interrupted.Run.Query
			req.Focus = interrupted.Run.Focus
		} else if interrupted.Query != "" {
			req.Query = interrupted.Query
		}
	}

	path, err := staleness.NormalizePath(s.resolve(req.Path))
	if err != nil {
		return failure(KindInvalidRequest, err), nil
	}
	if _, err := os.Stat(path); err != nil {
		return failure(KindInvalidRequest, fmt.Errorf("path %s: %w", req.Path, err)), nil
	}

	var report *staleness.Report
	if interrupted == nil && !req.ForceRefresh {
		report, err = s.detector.Check(ctx, path)
		if err != nil {
			return failure(KindStorage, err), nil
		}
		if report.Reason == staleness.ReasonUpToDate {
			return s.freshResponse(ctx, path, report)
		}
	}

	hashes, err := s.builder.Build(path)
	if err != nil {
		return failure(KindManifest, err), nil
	}

	runID := ""
	if interrupted != nil {
		runID = interrupted.RunID
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	s.startRun(runID, path, req, interrupted)

	orch := orchestrator.New(s.dispatcher,
		orchestrator.WithConfig(orchestrator.Config{
			MaxRecursionDepth: s.cfg.Orchestrator.MaxRecursionDepth,
			MaxIterations:     s.cfg.Orchestrator.MaxIterations,
			CostTracking:      s.cfg.Orchestrator.CostTracking,
			ParallelBranches:  s.cfg.Orchestrator.ParallelBranches,
		}),
		orchestrator.WithCache(s.cache),
		orchestrator.WithCheckpointStore(s.checkpts),
		orchestrator.WithEventEmitter(s.emitter),
		orchestrator.WithLogger(s.logger),
		orchestrator.WithClock(s.now),
		orchestrator.WithRunID(runID),
	)

	result, err := orch.Analyze(ctx, path, focusedQuery(req.Query, req.Focus))
	stats := orch.Stats()
	if err != nil {
		return s.failRun(orch.RunID(), stats, err)
	}

	rec := &storage.Record{
		Query:      req.Query,
		Focus:      req.Focus,
		Timestamp:  s.now(),
		Result:     result,
		Stats:      stats,
		Path:       path,
		FileHashes: hashes,
	}
	if err := s.backend.Store(ctx, rec); err != nil {
		s.finishRun(orch.RunID(), state.Outcome{Status: state.RunFailed, Stats: stats, ErrorKind: KindStorage, Error: err.Error()})
		resp := failure(KindStorage, fmt.Errorf("store analysis: %w", err))
		resp.Result = result
		resp.Stats = stats
		resp.RunID = orch.RunID()
		return resp, nil
	}
	s.finishRun(orch.RunID(), state.Outcome{Status: state.RunCompleted, Stats: stats, RecordFile: rec.File})

	resp := &Response{
		Success:      true,
		Result:       result,
		Stats:        stats,
		RunID:        orch.RunID(),
		Resumed:      orch.Resumed(),
		RecordFile:   rec.File,
		FilesTracked: len(hashes),
	}
	if report != nil && report.Stale {
		resp.Staleness = report
		resp.Message = "Files changed since last analysis"
	}
	return resp, nil
}

// freshResponse answers from the latest stored record of path.
func (s *Service) freshResponse(ctx context.Context, path string, report *staleness.Report) (*Response, error) {
	resp := &Response{
		Success:   true,
		Fresh:     true,
		Message:   "Analysis data is current. Search stored analyses, or force a refresh to re-analyze.",
		Staleness: report,
	}
	_, rec, err := staleness.Latest(ctx, s.backend, path)
	if err != nil {
		s.logger.Warn("load current analysis", "path", path, "error", err)
		return resp, nil
	}
	if rec != nil {
		resp.Result = rec.Result
		resp.Stats = rec.Stats
		resp.RecordFile = rec.File
		resp.FilesTracked = len(rec.FileHashes)
	}
	return resp, nil
}

// failRun records a failed run and maps err to a Response. Ceiling errors
// are returned as errors.
func (s *Service) failRun(runID string, stats models.Stats, err error) (*Response, error) {
	if orchestrator.IsCeiling(err) {
		s.finishRun(runID, state.Outcome{Status: state.RunAborted, Stats: stats, ErrorKind: "ceiling", Error: err.Error()})
		return nil, err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// The checkpoint stays, so the ledger row stays running until resumed
		// or abandoned.
		return nil, err
	}

	kind := KindDelegation
	var corrupt *orchestrator.StateCorruptionError
	if errors.As(err, &corrupt) {
		kind = KindStateCorruption
	}
	s.finishRun(runID, state.Outcome{Status: state.RunFailed, Stats: stats, ErrorKind: kind, Error: err.Error()})

	resp := failure(kind, err)
	resp.Stats = stats
	resp.RunID = runID
	return resp, nil
}

func (s *Service) startRun(runID, path string, req Request, interrupted *state.InterruptedRun) {
	if s.ledger == nil {
		return
	}
	if interrupted != nil && interrupted.Run != nil {
		return
	}
	run := &state.Run{
		ID:        runID,
		Path:      path,
		Query:     req.Query,
		Focus:     req.Focus,
		StartedAt: s.now(),
	}
	if err := s.ledger.CreateRun(run); err != nil {
		s.logger.Warn("record run start", "run_id", runID, "error", err)
	}
}

func (s *Service) finishRun(runID string, out state.Outcome) {
	if s.ledger == nil || runID == "" {
		return
	}
	if err := s.ledger.FinishRun(runID, out, s.now()); err != nil {
		s.logger.Warn("record run finish", "run_id", runID, "error", err)
	}
}

func (s *Service) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.workDir, path)
}

// focusedQuery prefixes query with a non-general focus.
func focusedQuery(query, focus string) string {
	if focus == "" || focus == FocusGeneral {
		return query
	}
	return fmt.Sprintf("[Focus: %s] %s", focus, query)
}

// Freshness checks path against its latest stored analysis.
func (s *Service) Freshness(ctx context.Context, path string) (*staleness.Report, error) {
	if path == "" {
		path = "."
	}
	return s.detector.Check(ctx, s.resolve(path))
}
