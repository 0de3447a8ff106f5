package engine

import (
	"regexp"
	"strings"
)

// LogType is the coarse category the classifier assigns to an input sample
type LogType string

const (
	LogTypeRunningConfig    LogType = "running-config"
	LogTypeStartupConfig    LogType = "startup-config"
	LogTypeTechSupport      LogType = "tech-support"
	LogTypeSyslog           LogType = "syslog"
	LogTypeInterfaceListing LogType = "interface-listing"
	LogTypeVersionDump      LogType = "version-dump"
	LogTypeAudit            LogType = "audit"
	LogTypeUnknown          LogType = "unknown"
)

// classifierPrefixBytes bounds how much of a file the classifier inspects
const classifierPrefixBytes = 16 * 1024

var (
	runningConfigRe = regexp.MustCompile(`(?im)^(Current configuration|Building configuration|!Running configuration|#\s*running-config)|\bshow running-config\b`)
	startupConfigRe = regexp.MustCompile(`(?im)^(Startup configuration|Using \d+ out of \d+ bytes)|\b(show startup-config|startup-config)\b`)
	techSupportRe   = regexp.MustCompile(`(?im)^-+\s*show\s+\S+.*-+$|\bshow tech-support\b|\bdisplay diagnostic-information\b`)
	versionDumpRe   = regexp.MustCompile(`(?im)\b(show|display) version\b|\buptime is\b|\bROM: |\bSoftware, Version\b`)
	ifListingRe     = regexp.MustCompile(`(?im)\bshow ip interface brief\b|\bdisplay interface brief\b|^Interface\s+IP-Address\s+OK\?|^Port\s+Name\s+Status`)
	// RFC3164 "Mmm dd hh:mm:ss", ISO timestamps, and facility-severity tags.
	syslogRe = regexp.MustCompile(`(?m)^(<\d+>|[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}|\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})|%[A-Z0-9_]+-\d-[A-Z0-9_]+:`)
	auditRe  = regexp.MustCompile(`(?im)\b(audit log|audit trail|login audit|command accounting)\b`)
)

// ClassifyLogType inspects a bounded prefix of a text sample and returns the
// best-matching coarse category. Categories are tested in priority order;
// the first match wins.
func ClassifyLogType(sample string) LogType {
	if len(sample) > classifierPrefixBytes {
		sample = sample[:classifierPrefixBytes]
	}
	sample = strings.TrimLeft(sample, "\uFEFF \t\r\n")

	switch {
	case runningConfigRe.MatchString(sample):
		return LogTypeRunningConfig
	case startupConfigRe.MatchString(sample):
		return LogTypeStartupConfig
	case techSupportRe.MatchString(sample):
		return LogTypeTechSupport
	case versionDumpRe.MatchString(sample):
		return LogTypeVersionDump
	case ifListingRe.MatchString(sample):
		return LogTypeInterfaceListing
	case syslogRe.MatchString(sample):
		return LogTypeSyslog
	case auditRe.MatchString(sample):
		return LogTypeAudit
	}
	return LogTypeUnknown
}

// isConfigLike reports whether a classified type represents device
// configuration content, which biases arbitration toward vendor engines
func (t LogType) isConfigLike() bool {
	switch t {
	case LogTypeRunningConfig, LogTypeStartupConfig, LogTypeTechSupport:
		return true
	}
	return false
}

// isSyslogLike reports whether a classified type represents event-stream
// content, which biases arbitration toward the generic engine
func (t LogType) isSyslogLike() bool {
	return t == LogTypeSyslog || t == LogTypeAudit
}
