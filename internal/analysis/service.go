// Package analysis implements the batch analysis service. It walks a set of
// input files, parses each one through the extraction arbitrator on a bounded
// worker pool, and persists the resulting canonical records once the whole
// batch is available. Failures are isolated per file: one file exhausting
// every parser does not abort the rest of the batch.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netlens/internal/config"
	"netlens/internal/database"
	"netlens/internal/engine"
	"netlens/internal/models"
)

// Service runs batch analyses over directories of device log/config files
type Service struct {
	config     *config.Config
	db         *database.DB
	arbitrator *engine.Arbitrator
	logger     zerolog.Logger

	runLock   sync.Mutex
	isRunning bool
	stats     *RunStats
	cancel    context.CancelFunc
}

// RunStats tracks statistics for the current/last analysis run
type RunStats struct {
	RunID       int64     `json:"runId"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime,omitempty"`
	Status      string    `json:"status"`
	FilesTotal  int       `json:"filesTotal"`
	FilesParsed int       `json:"filesParsed"`
	FilesFailed int       `json:"filesFailed"`
	Errors      []string  `json:"errors,omitempty"`
}

// FileResult pairs one input file with its outcome
type FileResult struct {
	Path   string
	Record *models.DeviceRecord
	Err    error
}

// New creates a new analysis service
func New(cfg *config.Config, db *database.DB, arbitrator *engine.Arbitrator) *Service {
	return &Service{
		config:     cfg,
		db:         db,
		arbitrator: arbitrator,
		logger:     log.With().Str("component", "analysis").Logger(),
		stats:      &RunStats{Status: "idle"},
	}
}

// GetStatus returns the current run statistics
func (s *Service) GetStatus() RunStats {
	s.runLock.Lock()
	defer s.runLock.Unlock()
	return *s.stats
}

// Cancel requests cooperative cancellation of the running batch
func (s *Service) Cancel() {
	s.runLock.Lock()
	defer s.runLock.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// workerCount bounds parallelism to the smaller of available CPUs and the
// configured cap so constrained machines are not oversubscribed
func (s *Service) workerCount() int {
	n := runtime.GOMAXPROCS(0)
	if limit := s.config.Analyzer.WorkerCap; limit > 0 && limit < n {
		n = limit
	}
	if n < 1 {
		n = 1
	}
	return n
}

// AnalyzeDirectory collects matching files under dir and analyzes them as one
// batch, returning the run id
func (s *Service) AnalyzeDirectory(ctx context.Context, dir string) (int64, []*models.DeviceRecord, error) {
	if dir == "" {
		dir = s.config.Analyzer.InputDir
	}
	paths, err := s.collectFiles(dir)
	if err != nil {
		return 0, nil, err
	}
	if len(paths) == 0 {
		return 0, nil, fmt.Errorf("no matching input files under %s", dir)
	}
	return s.AnalyzeFiles(ctx, dir, paths)
}

// AnalyzeFiles analyzes the given files as one batch: each file is parsed to
// completion by one worker, results are gathered behind an aggregation
// barrier, then persisted. Only one batch runs at a time.
func (s *Service) AnalyzeFiles(ctx context.Context, source string, paths []string) (int64, []*models.DeviceRecord, error) {
	s.runLock.Lock()
	if s.isRunning {
		s.runLock.Unlock()
		return 0, nil, fmt.Errorf("an analysis is already in progress")
	}
	s.isRunning = true
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stats = &RunStats{
		StartTime:  time.Now(),
		Status:     "running",
		FilesTotal: len(paths),
	}
	s.runLock.Unlock()

	defer func() {
		cancel()
		s.runLock.Lock()
		s.isRunning = false
		s.cancel = nil
		s.stats.EndTime = time.Now()
		s.runLock.Unlock()
	}()

	runID, err := s.db.CreateRun(uuid.New().String(), source)
	if err != nil {
		s.setStatus("error", err)
		return 0, nil, fmt.Errorf("failed to record analysis run: %w", err)
	}
	s.runLock.Lock()
	s.stats.RunID = runID
	s.runLock.Unlock()

	s.logger.Info().
		Int64("runID", runID).
		Int("files", len(paths)).
		Int("workers", s.workerCount()).
		Msg("Starting batch analysis")

	results := s.parseAll(runCtx, paths)

	// The batch is complete (or cancelled); fold results into stats and
	// persist the successful records.
	var records []*models.DeviceRecord
	var errs []string
	cancelled := false
	for _, res := range results {
		switch {
		case res.Err == nil:
			records = append(records, res.Record)
		case errors.Is(res.Err, context.Canceled) || runCtx.Err() != nil:
			cancelled = true
		default:
			errs = append(errs, fmt.Sprintf("%s: %v", filepath.Base(res.Path), res.Err))
			s.logger.Warn().Err(res.Err).Str("file", res.Path).Msg("File analysis failed")
		}
	}
	if runCtx.Err() != nil {
		// The feeder may have bailed out before any job was dispatched,
		// leaving no per-file result to carry the cancellation.
		cancelled = true
	}

	if s.config.Analyzer.PersistRecords {
		for _, rec := range records {
			if id, err := s.db.SaveRecord(runID, rec); err != nil {
				errs = append(errs, fmt.Sprintf("persist %s: %v", filepath.Base(rec.FileName), err))
			} else {
				rec.ID = id
			}
		}
	}

	status := "completed"
	if cancelled {
		status = "cancelled"
	} else if len(records) == 0 && len(errs) > 0 {
		status = "error"
	}

	duration := time.Since(s.stats.StartTime)
	errMsg := ""
	if len(errs) > 0 {
		errMsg = errs[0]
		if len(errs) > 1 {
			errMsg = fmt.Sprintf("%s (and %d more)", errs[0], len(errs)-1)
		}
	}
	if err := s.db.UpdateRun(runID, status, len(paths), len(records), len(errs), duration, errMsg); err != nil {
		s.logger.Error().Err(err).Msg("Failed to update run record in database")
	}

	s.runLock.Lock()
	s.stats.Status = status
	s.stats.FilesParsed = len(records)
	s.stats.FilesFailed = len(errs)
	s.stats.Errors = errs
	s.runLock.Unlock()

	s.logger.Info().
		Int64("runID", runID).
		Int("parsed", len(records)).
		Int("failed", len(errs)).
		Dur("duration", duration).
		Str("status", status).
		Msg("Batch analysis finished")

	if cancelled {
		return runID, records, context.Canceled
	}
	return runID, records, nil
}

// parseAll fans the paths out over the worker pool and gathers every result.
// Each parse returns a fresh record, so workers share no mutable state.
func (s *Service) parseAll(ctx context.Context, paths []string) []FileResult {
	jobs := make(chan string)
	out := make(chan FileResult)

	var wg sync.WaitGroup
	for w := 0; w < s.workerCount(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				rec, err := s.arbitrator.ParseFile(ctx, path)
				out <- FileResult{Path: path, Record: rec, Err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, p := range paths {
			select {
			case jobs <- p:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(out)
	}()

	var results []FileResult
	for res := range out {
		results = append(results, res)
	}
	return results
}

// collectFiles lists regular files under dir matching the configured patterns
func (s *Service) collectFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access input directory: %w", err)
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	patterns := s.config.Analyzer.FilePatterns
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	seen := map[string]bool{}
	var paths []string
	for _, pat := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pat))
		if err != nil {
			return nil, fmt.Errorf("invalid file pattern %q: %w", pat, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Service) setStatus(status string, err error) {
	s.runLock.Lock()
	defer s.runLock.Unlock()
	s.stats.Status = status
	if err != nil {
		s.stats.Errors = append(s.stats.Errors, err.Error())
	}
}
