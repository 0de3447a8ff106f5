// Package engine implements the per-vendor extraction engines that convert raw
// device log/configuration text into canonical device records, the log-type
// classifier, and the arbitrator that decides which engine's output to trust
// for an unlabeled input file.
package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"netlens/internal/anomaly"
	"netlens/internal/models"
)

// Engine is the contract every vendor extraction engine implements. CanParse
// and ConfidenceScore are cheap heuristics over a bounded text sample; Parse
// consumes the whole file in a single forward pass. Parse fails only on
// cancellation or when the file cannot be opened; malformed content is
// captured as parse errors inside the returned record.
type Engine interface {
	Vendor() models.VendorID
	CanParse(sample string) bool
	ConfidenceScore(sample string) int
	Parse(ctx context.Context, path string) (*models.DeviceRecord, error)
}

// Registry holds the set of available engines. It is populated once at
// startup and treated as read-only afterwards, so no locking is needed.
type Registry struct {
	engines []Engine
}

// NewRegistry creates an empty engine registry
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an engine to the registry
func (r *Registry) Register(e Engine) {
	r.engines = append(r.engines, e)
}

// Engines returns all registered engines in registration order
func (r *Registry) Engines() []Engine {
	return r.engines
}

// Get returns the engine for the given vendor, if registered
func (r *Registry) Get(vendor models.VendorID) (Engine, bool) {
	for _, e := range r.engines {
		if e.Vendor() == vendor {
			return e, true
		}
	}
	return nil, false
}

// DefaultRegistry returns a registry with all built-in engines registered,
// applying the standard anomaly thresholds
func DefaultRegistry() *Registry {
	return DefaultRegistryWith(anomaly.DefaultThresholds())
}

// DefaultRegistryWith returns a registry with all built-in engines registered,
// applying the given anomaly thresholds to every parsed record
func DefaultRegistryWith(t anomaly.Thresholds) *Registry {
	r := NewRegistry()
	r.Register(NewCiscoEngine())
	r.Register(NewHuaweiEngine())
	r.Register(NewJuniperEngine())
	r.Register(NewFortinetEngine())
	r.Register(NewGenericEngine())
	for _, e := range r.engines {
		if s, ok := e.(thresholdSetter); ok {
			s.setThresholds(t)
		}
	}
	return r
}

// evalLimits carries the anomaly-rule thresholds an engine applies when it
// runs the anomaly pass on a finished record. Engines embed it so the
// registry can thread configured thresholds through to every parse.
type evalLimits struct {
	thresholds anomaly.Thresholds
}

type thresholdSetter interface {
	setThresholds(anomaly.Thresholds)
}

func (l *evalLimits) setThresholds(t anomaly.Thresholds) {
	l.thresholds = t
}

func (l *evalLimits) evaluate(rec *models.DeviceRecord) {
	anomaly.EvaluateWith(rec, l.thresholds)
}

// lineOutcome is the explicit per-line parse result consumed by the read-loop
// driver. Malformed lines produce lineError with a message; lines that match
// no rule at all produce lineSkip, which is not an error.
type lineOutcome int

const (
	lineOK lineOutcome = iota
	lineSkip
	lineError
)

// lineFunc processes one line of input and reports its outcome
type lineFunc func(num int, line string) (lineOutcome, string)

// maxLineBytes bounds the scanner buffer for pathological single-line inputs
const maxLineBytes = 512 * 1024

// forEachLine drives a single forward pass over the file, invoking fn for
// every line with its 1-based number. Cancellation is checked at each line
// boundary. Line outcomes are folded into the record's counters and parse
// error log; only cancellation and open failures abort the pass.
func forEachLine(ctx context.Context, path string, rec *models.DeviceRecord, fn lineFunc) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	num := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		num++
		rec.TotalLines++
		outcome, msg := fn(num, scanner.Text())
		switch outcome {
		case lineOK:
			rec.ParsedLines++
		case lineError:
			rec.RecordParseError(num, msg)
		}
	}
	if err := scanner.Err(); err != nil {
		rec.RecordParseError(num+1, err.Error())
	}
	return nil
}

// parseState is the explicit mutable state a single-pass parse carries: the
// index of the open interface in the record's interface list (-1 when no
// interface context is open), the current top-level section, and a block
// stack for brace-hierarchical syntaxes.
type parseState struct {
	rec     *models.DeviceRecord
	open    int
	section string
	stack   []string
}

func newParseState(rec *models.DeviceRecord) *parseState {
	return &parseState{rec: rec, open: -1}
}

// openInterface switches the open-interface context to the named interface,
// creating it when absent. Re-opening an existing name updates the existing
// entry rather than appending a duplicate.
func (st *parseState) openInterface(name string, kind models.InterfaceKind) *models.Interface {
	st.open = st.rec.UpsertInterface(name, kind)
	return &st.rec.Interfaces[st.open]
}

// current returns the open interface, or nil when none is open
func (st *parseState) current() *models.Interface {
	if st.open < 0 || st.open >= len(st.rec.Interfaces) {
		return nil
	}
	return &st.rec.Interfaces[st.open]
}

// closeInterface ends the open interface context. The interface itself
// already lives in the record's list, so closing is idempotent and can never
// insert a duplicate.
func (st *parseState) closeInterface() {
	st.open = -1
}

// finishRecord applies end-of-input defaults: the file name (without
// extension) stands in for a missing device identity, and each interface's
// operational status is derived from its administrative state.
func finishRecord(rec *models.DeviceRecord) {
	if rec.Identity() == "" {
		base := filepath.Base(rec.FileName)
		rec.DeviceName = strings.TrimSuffix(base, filepath.Ext(base))
	}
	for i := range rec.Interfaces {
		if rec.Interfaces[i].Shutdown {
			rec.Interfaces[i].Status = "down"
		} else if rec.Interfaces[i].Status == "" {
			rec.Interfaces[i].Status = "up"
		}
	}
	if rec.ParsedLines > rec.TotalLines {
		rec.ParsedLines = rec.TotalLines
	}
}

// baseIdentity returns the fallback identity for a record's source file
func baseIdentity(fileName string) string {
	base := filepath.Base(fileName)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
