package engine

import (
	"context"
	"regexp"
	"strings"

	"netlens/internal/anomaly"
	"netlens/internal/models"
)

// GenericEngine is the fallback extractor for inputs no vendor engine claims:
// syslog streams, audit trails, and exports in unrecognized dialects. It
// scrapes whatever universal signals it can find (identity, versions,
// addresses, interface mentions) without assuming any block structure.
type GenericEngine struct {
	evalLimits
	signals []signal
}

// NewGenericEngine creates the generic fallback engine
func NewGenericEngine() *GenericEngine {
	return &GenericEngine{
		evalLimits: evalLimits{thresholds: anomaly.DefaultThresholds()},
		signals: []signal{
			{regexp.MustCompile(`(?m)^[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`), 20},
			{regexp.MustCompile(`%[A-Z0-9_]+-\d-[A-Z0-9_]+:`), 15},
			{regexp.MustCompile(`(?im)\b(hostname|sysname|host-name)\b`), 10},
			{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`), 10},
		},
	}
}

// Vendor returns the engine's stable identity
func (e *GenericEngine) Vendor() models.VendorID { return models.VendorGeneric }

// CanParse always holds; the generic engine is the parser of last resort
func (e *GenericEngine) CanParse(sample string) bool { return true }

// ConfidenceScore is a low baseline plus universal signals, so any vendor
// engine with real keyword matches outranks it
func (e *GenericEngine) ConfidenceScore(sample string) int {
	score := 5 + scoreSignals(sample, e.signals)
	if score > 100 {
		score = 100
	}
	return score
}

var (
	genHostRe    = regexp.MustCompile(`(?i)\b(?:hostname|sysname|host-name)[ :=]+"?([\w.-]+)"?`)
	genIfaceRe   = regexp.MustCompile(`(?i)\binterface[ :=]+([\w/.:-]+)`)
	genIfMention = regexp.MustCompile(`\b((?:Gi|Te|Fa|Eth|GigabitEthernet|TenGigE|FastEthernet|Ethernet|ge-|xe-|et-)[\d/.:]+)\b`)
	genUserRe    = regexp.MustCompile(`(?i)\buser(?:name)?[ :=]+"?([\w.-]+)"?`)
	genNTPRe     = regexp.MustCompile(`(?i)\bntp[ -]server[ :=]+(\S+)`)
	genVerRe     = regexp.MustCompile(`(?i)\b(?:software|version)[ :=]+v?([\w.()-]+)`)
	genSerialRe  = regexp.MustCompile(`(?i)\bserial(?: number)?[ :=]+([\w-]+)`)
	genSyslogRe  = regexp.MustCompile(`^(?:<\d+>)?[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}\s+(\S+)\s`)
)

// Parse consumes the file in a single forward pass with no block structure;
// each line is scraped independently
func (e *GenericEngine) Parse(ctx context.Context, path string) (*models.DeviceRecord, error) {
	rec := models.NewDeviceRecord(path)
	rec.Vendor = models.VendorGeneric
	st := newParseState(rec)

	err := forEachLine(ctx, path, rec, func(num int, raw string) (lineOutcome, string) {
		return e.processLine(st, raw)
	})
	if err != nil {
		return nil, err
	}

	finishRecord(rec)
	e.evaluate(rec)
	return rec, nil
}

func (e *GenericEngine) processLine(st *parseState, raw string) (lineOutcome, string) {
	rec := st.rec
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return lineSkip, ""
	}

	matched := false

	if rec.Identity() == "" {
		// Syslog relay hostnames are the second field of RFC3164 lines.
		if m := genSyslogRe.FindStringSubmatch(trimmed); m != nil && !strings.Contains(m[1], "%") {
			rec.SystemName = m[1]
			matched = true
		}
	}
	if m := genHostRe.FindStringSubmatch(trimmed); m != nil {
		if rec.DeviceName == "" {
			rec.DeviceName = m[1]
		}
		matched = true
	}
	if m := genIfaceRe.FindStringSubmatch(trimmed); m != nil {
		idx := rec.UpsertInterface(m[1], classifyInterfaceName(m[1]))
		rec.Interfaces[idx].RawLines = append(rec.Interfaces[idx].RawLines, trimmed)
		matched = true
	} else if m := genIfMention.FindStringSubmatch(trimmed); m != nil {
		idx := rec.UpsertInterface(m[1], classifyInterfaceName(m[1]))
		rec.Interfaces[idx].RawLines = append(rec.Interfaces[idx].RawLines, trimmed)
		matched = true
	}
	if m := genUserRe.FindStringSubmatch(trimmed); m != nil {
		rec.AddUser(m[1])
		matched = true
	}
	if m := genNTPRe.FindStringSubmatch(trimmed); m != nil {
		rec.AddNTPServer(m[1])
		matched = true
	}
	if m := genVerRe.FindStringSubmatch(trimmed); m != nil && rec.SoftwareVersion == "" {
		rec.SoftwareVersion = m[1]
		matched = true
	}
	if m := genSerialRe.FindStringSubmatch(trimmed); m != nil && rec.SerialNumber == "" {
		rec.SerialNumber = m[1]
		matched = true
	}
	if scanDiscovery(st, raw) {
		matched = true
	}

	if matched {
		return lineOK, ""
	}
	return lineSkip, ""
}
