package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"netlens/internal/models"
)

// ErrNoUsableParser is returned when arbitration exhausts every registered
// engine without obtaining any result
var ErrNoUsableParser = errors.New("no usable parser")

// ErrEngineNotRegistered is returned when a requested vendor engine is absent
var ErrEngineNotRegistered = errors.New("engine not registered")

// samplePrefixBytes bounds how much of a file is read for classification and
// confidence scoring
const samplePrefixBytes = 16 * 1024

// meaningfulLineFloor is the parsed-line count above which a result is
// accepted even without structural content
const meaningfulLineFloor = 5

const (
	genericBoost = 20
	vendorBoost  = 15
)

// ExtKeyLogType is the extension map key under which the arbitrator records
// the classified log type of the accepted result
const ExtKeyLogType = "log_type"

// Arbitrator decides which engine's result to trust for an unlabeled input
// file. The registry it holds is constructed once at startup and treated as
// read-only.
type Arbitrator struct {
	registry    *Registry
	sampleBytes int
	logger      zerolog.Logger
}

// NewArbitrator creates an arbitrator over the given engine registry with the
// standard sample-prefix size
func NewArbitrator(registry *Registry) *Arbitrator {
	return NewArbitratorWith(registry, samplePrefixBytes)
}

// NewArbitratorWith creates an arbitrator that samples at most sampleBytes of
// each file for classification and confidence scoring. Non-positive sizes
// fall back to the standard prefix.
func NewArbitratorWith(registry *Registry, sampleBytes int) *Arbitrator {
	if sampleBytes <= 0 {
		sampleBytes = samplePrefixBytes
	}
	return &Arbitrator{
		registry:    registry,
		sampleBytes: sampleBytes,
		logger:      log.With().Str("component", "arbitrator").Logger(),
	}
}

// candidate pairs an engine with its raw and type-adjusted confidence scores
type candidate struct {
	engine   Engine
	raw      int
	adjusted int
}

// ParseFile classifies the file, scores every registered engine, and executes
// candidates in adjusted-score order until one produces a meaningful record.
// When none does, the structurally richest result wins. It fails with
// ErrNoUsableParser when no engine produces any result at all.
func (a *Arbitrator) ParseFile(ctx context.Context, path string) (*models.DeviceRecord, error) {
	engines := a.registry.Engines()
	if len(engines) == 0 {
		return nil, fmt.Errorf("%w: no engines registered for %s", ErrNoUsableParser, path)
	}

	sample, err := readSample(path, a.sampleBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s: %w", path, err)
	}
	logType := ClassifyLogType(sample)

	candidates := make([]candidate, 0, len(engines))
	for _, e := range engines {
		raw := e.ConfidenceScore(sample)
		adjusted := raw
		switch {
		case logType.isSyslogLike() && e.Vendor() == models.VendorGeneric:
			adjusted += genericBoost
		case logType.isConfigLike() && e.Vendor() != models.VendorGeneric:
			adjusted += vendorBoost
		}
		if adjusted > 100 {
			adjusted = 100
		}
		candidates = append(candidates, candidate{engine: e, raw: raw, adjusted: adjusted})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].adjusted != candidates[j].adjusted {
			return candidates[i].adjusted > candidates[j].adjusted
		}
		return candidates[i].raw > candidates[j].raw
	})

	identity := baseIdentity(path)
	var results []*models.DeviceRecord
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := c.engine.Parse(ctx, path)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			a.logger.Warn().Err(err).
				Str("vendor", string(c.engine.Vendor())).
				Str("file", path).
				Msg("Engine execution failed, trying next candidate")
			continue
		}
		if rec == nil {
			continue
		}
		if isMeaningful(rec, identity) {
			a.logger.Debug().
				Str("vendor", string(c.engine.Vendor())).
				Str("file", path).
				Int("score", c.adjusted).
				Str("logType", string(logType)).
				Msg("Accepted engine result")
			rec.SetExtension(ExtKeyLogType, models.StringExtension(string(logType)))
			return rec, nil
		}
		results = append(results, rec)
	}

	// No candidate was meaningful; fall back to the structurally richest
	// result obtained.
	if len(results) > 0 {
		best := results[0]
		for _, rec := range results[1:] {
			if len(rec.Interfaces) > len(best.Interfaces) ||
				(len(rec.Interfaces) == len(best.Interfaces) && rec.ParsedLines > best.ParsedLines) {
				best = rec
			}
		}
		a.logger.Debug().
			Str("vendor", string(best.Vendor)).
			Str("file", path).
			Msg("No meaningful result, using structural fallback")
		best.SetExtension(ExtKeyLogType, models.StringExtension(string(logType)))
		return best, nil
	}

	return nil, fmt.Errorf("%w for %s", ErrNoUsableParser, path)
}

// ParseWith bypasses arbitration and parses with a specific vendor's engine
func (a *Arbitrator) ParseWith(ctx context.Context, path string, vendor models.VendorID) (*models.DeviceRecord, error) {
	e, ok := a.registry.Get(vendor)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEngineNotRegistered, vendor)
	}
	return e.Parse(ctx, path)
}

// isMeaningful judges whether an engine result carries real extracted
// structure rather than just echoing the file back
func isMeaningful(rec *models.DeviceRecord, fallbackIdentity string) bool {
	if rec.Identity() != "" && rec.Identity() != fallbackIdentity {
		return true
	}
	if len(rec.Interfaces) > 0 || len(rec.VLANs) > 0 || len(rec.Findings) > 0 {
		return true
	}
	return rec.ParsedLines > meaningfulLineFloor
}

// readSample reads a bounded prefix of the file for heuristic inspection
func readSample(path string, limit int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf := make([]byte, limit)
	n, err := f.Read(buf)
	if n == 0 && err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return string(buf[:n]), nil
}
