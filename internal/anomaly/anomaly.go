// Package anomaly implements the rule engine that evaluates canonical device
// records for security, performance, and configuration anomalies, plus the
// penalty-based health score derived from the findings. Evaluation is a pure
// function of the record: findings are always recomputed from scratch, never
// patched incrementally.
package anomaly

import (
	"fmt"
	"net"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"netlens/internal/config"
	"netlens/internal/models"
)

// Thresholds holds the fixed limits the performance rules test gauges and
// counters against
type Thresholds struct {
	CPUHigh         float64
	CPUCritical     float64
	MemoryHigh      float64
	MemoryCritical  float64
	DiskHigh        float64
	DiskCritical    float64
	ErrorsHigh      int64
	ErrorsCritical  int64
	UtilizationHigh float64
	UtilizationCrit float64
}

// DefaultThresholds returns the standard rule limits
func DefaultThresholds() Thresholds {
	return Thresholds{
		CPUHigh:         80,
		CPUCritical:     95,
		MemoryHigh:      80,
		MemoryCritical:  95,
		DiskHigh:        90,
		DiskCritical:    95,
		ErrorsHigh:      100,
		ErrorsCritical:  1000,
		UtilizationHigh: 70,
		UtilizationCrit: 90,
	}
}

// ThresholdsFromConfig maps the anomaly configuration block onto rule limits.
// Unset (zero) values fall back to the standard limits so a partial block
// cannot silence the gauge rules.
func ThresholdsFromConfig(cfg *config.Config) Thresholds {
	t := DefaultThresholds()
	a := cfg.Anomaly
	if a.CPUHighPercent > 0 {
		t.CPUHigh = a.CPUHighPercent
	}
	if a.CPUCriticalPercent > 0 {
		t.CPUCritical = a.CPUCriticalPercent
	}
	if a.MemHighPercent > 0 {
		t.MemoryHigh = a.MemHighPercent
	}
	if a.MemCriticalPercent > 0 {
		t.MemoryCritical = a.MemCriticalPercent
	}
	if a.DiskHighPercent > 0 {
		t.DiskHigh = a.DiskHighPercent
	}
	if a.DiskCriticalPercent > 0 {
		t.DiskCritical = a.DiskCriticalPercent
	}
	if a.ErrorsHigh > 0 {
		t.ErrorsHigh = a.ErrorsHigh
	}
	if a.ErrorsCritical > 0 {
		t.ErrorsCritical = a.ErrorsCritical
	}
	if a.UtilizationHigh > 0 {
		t.UtilizationHigh = a.UtilizationHigh
	}
	if a.UtilizationCritical > 0 {
		t.UtilizationCrit = a.UtilizationCritical
	}
	return t
}

// severityPenalty is the fixed health-score deduction per finding
func severityPenalty(s models.Severity) int {
	switch s {
	case models.SeverityCritical:
		return 25
	case models.SeverityHigh:
		return 15
	case models.SeverityMedium:
		return 8
	case models.SeverityLow:
		return 3
	}
	return 1
}

// ComputeHealthScore derives the 0-100 health score from a finding list:
// start at 100, subtract the per-severity penalty for each finding, clamp
func ComputeHealthScore(findings []models.Finding) int {
	score := 100
	for _, f := range findings {
		score -= severityPenalty(f.Severity)
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// weakUserSubstrings is the dictionary of known-weak or default credential
// name fragments
var weakUserSubstrings = []string{"admin", "cisco", "root", "guest", "test", "default", "user"}

// vendorDefaultUsers maps a vendor name appearing in the device identity to
// its factory default account patterns
var vendorDefaultUsers = map[string][]string{
	"cisco":     {"cisco"},
	"huawei":    {"admin", "huawei"},
	"juniper":   {"netscreen"},
	"fortinet":  {"maintainer", "admin"},
	"fortigate": {"maintainer", "admin"},
	"hp":        {"admin"},
	"h3c":       {"admin"},
}

var (
	insecureServiceRe = regexp.MustCompile(`(?i)\b(telnet|rlogin|rsh|ftp(?:\s|$)|http server|ip http\b|snmp-server community (?:public|private)\b|snmp community (?:public|private)\b)`)
	weakCipherRe      = regexp.MustCompile(`(?i)\b(des|3des|rc4|md5|sha1|sslv2|sslv3|ssl3|diffie-hellman-group1)\b`)
	routeFilterRe     = regexp.MustCompile(`(?i)\b(prefix-list|route-map|filter-list|route-policy|policy-statement|distribute-list)\b`)
	peerAuthRe        = regexp.MustCompile(`(?i)\b(password|md5|keychain|key-chain|authentication)\b`)
)

// Evaluate recomputes the record's finding list and health score in place
func Evaluate(rec *models.DeviceRecord) {
	EvaluateWith(rec, DefaultThresholds())
}

// EvaluateWith is Evaluate with explicit thresholds
func EvaluateWith(rec *models.DeviceRecord, t Thresholds) {
	var findings []models.Finding
	findings = append(findings, securityFindings(rec)...)
	findings = append(findings, performanceFindings(rec, t)...)
	findings = append(findings, configurationFindings(rec)...)
	rec.Findings = findings
	rec.HealthScore = ComputeHealthScore(findings)
}

func securityFindings(rec *models.DeviceRecord) []models.Finding {
	var out []models.Finding

	// Addressed interfaces on a device with no access control at all.
	if len(rec.ACLs) == 0 {
		for _, ifc := range rec.Interfaces {
			if isRoutableAddress(ifc.IPAddress) {
				out = append(out, models.Finding{
					Category:    models.CategorySecurity,
					Subcategory: "access-control",
					Severity:    models.SeverityHigh,
					Description: fmt.Sprintf("Interface %s carries address %s but no access control list is configured on the device", ifc.Name, ifc.IPAddress),
					Remediation: "Apply an access control list to addressed interfaces",
				})
			}
		}
	}

	for _, user := range rec.Users {
		lower := strings.ToLower(user)
		for _, weak := range weakUserSubstrings {
			if strings.Contains(lower, weak) {
				out = append(out, models.Finding{
					Category:    models.CategorySecurity,
					Subcategory: "credentials",
					Severity:    models.SeverityHigh,
					Description: fmt.Sprintf("Local user %q matches known-weak credential pattern %q", user, weak),
					Remediation: "Rename or remove default accounts and enforce strong authentication",
				})
				break
			}
		}
	}

	if len(rec.BGPPeers) > 0 {
		if len(rec.ACLs) == 0 {
			out = append(out, models.Finding{
				Category:    models.CategorySecurity,
				Subcategory: "routing",
				Severity:    models.SeverityHigh,
				Description: "Dynamic routing peers configured with no access control entries on the device",
				Remediation: "Restrict routing protocol traffic with access control lists",
			})
		}

		routing := extensionText(rec, "routing_config")
		if !peerAuthRe.MatchString(routing) {
			out = append(out, models.Finding{
				Category:    models.CategorySecurity,
				Subcategory: "routing",
				Severity:    models.SeverityMedium,
				Description: "Routing peers configured without any authentication marker",
				Remediation: "Enable peer authentication (MD5 or keychain) on all routing sessions",
			})
		}
		if !routeFilterRe.MatchString(routing) {
			out = append(out, models.Finding{
				Category:    models.CategorySecurity,
				Subcategory: "routing",
				Severity:    models.SeverityMedium,
				Description: "Routing configured without prefix or route filters",
				Remediation: "Filter advertised and received prefixes on every peer",
			})
		}
		for _, asn := range reservedASNs(rec) {
			out = append(out, models.Finding{
				Category:    models.CategorySecurity,
				Subcategory: "routing",
				Severity:    models.SeverityLow,
				Description: fmt.Sprintf("Routing uses reserved or private-use autonomous system number %d", asn),
				Remediation: "Assign a registered autonomous system number for external peering",
			})
		}
	}

	if rec.ManagementIP != "" && isRoutableAddress(rec.ManagementIP) && !isPrivateAddress(rec.ManagementIP) {
		out = append(out, models.Finding{
			Category:    models.CategorySecurity,
			Subcategory: "management",
			Severity:    models.SeverityHigh,
			Description: fmt.Sprintf("Management address %s is not in private address space", rec.ManagementIP),
			Remediation: "Move device management onto a private, access-controlled network",
		})
	}

	for _, ifc := range rec.Interfaces {
		for _, line := range ifc.RawLines {
			if m := insecureServiceRe.FindString(line); m != "" {
				out = append(out, models.Finding{
					Category:    models.CategorySecurity,
					Subcategory: "insecure-service",
					Severity:    models.SeverityHigh,
					Description: fmt.Sprintf("Cleartext or insecure service %q referenced on interface %s", strings.TrimSpace(m), ifc.Name),
					Remediation: "Disable cleartext management protocols in favor of SSH/HTTPS/SNMPv3",
				})
				break
			}
		}
	}

	if f, ok := weakCipherFinding(rec); ok {
		out = append(out, f)
	}

	identity := strings.ToLower(rec.Identity() + " " + string(rec.Vendor) + " " + rec.Model)
	vendors := make([]string, 0, len(vendorDefaultUsers))
	for v := range vendorDefaultUsers {
		vendors = append(vendors, v)
	}
	sort.Strings(vendors)
	for _, vendor := range vendors {
		defaults := vendorDefaultUsers[vendor]
		if !strings.Contains(identity, vendor) {
			continue
		}
		for _, user := range rec.Users {
			for _, def := range defaults {
				if strings.EqualFold(user, def) {
					out = append(out, models.Finding{
						Category:       models.CategorySecurity,
						Subcategory:    "credentials",
						Severity:       models.SeverityCritical,
						Description:    fmt.Sprintf("Factory default account %q present on %s device", user, vendor),
						Remediation:    "Remove or rename the factory default account",
						VendorSpecific: true,
					})
				}
			}
		}
	}

	return out
}

func weakCipherFinding(rec *models.DeviceRecord) (models.Finding, bool) {
	check := func(text, where string) (models.Finding, bool) {
		if m := weakCipherRe.FindString(text); m != "" {
			return models.Finding{
				Category:    models.CategorySecurity,
				Subcategory: "cryptography",
				Severity:    models.SeverityMedium,
				Description: fmt.Sprintf("Weak cipher or hash %q referenced in %s", m, where),
				Remediation: "Replace deprecated ciphers with current algorithms",
			}, true
		}
		return models.Finding{}, false
	}

	for _, ifc := range rec.Interfaces {
		for _, line := range ifc.RawLines {
			if f, ok := check(line, "interface "+ifc.Name); ok {
				return f, true
			}
		}
	}
	for _, key := range rec.ExtensionKeys() {
		if key == "routing_config" {
			// Peer MD5 authentication is reported by the routing rules, not
			// as a cipher weakness.
			continue
		}
		for _, s := range rec.Extensions[key].Strings() {
			if f, ok := check(s, "vendor extension "+key); ok {
				return f, true
			}
		}
	}
	return models.Finding{}, false
}

func performanceFindings(rec *models.DeviceRecord, t Thresholds) []models.Finding {
	var out []models.Finding

	gauge := func(name string, value, high, critical float64) {
		if value <= high {
			return
		}
		sev := models.SeverityHigh
		if value > critical {
			sev = models.SeverityCritical
		}
		out = append(out, models.Finding{
			Category:    models.CategoryPerformance,
			Subcategory: "resources",
			Severity:    sev,
			Description: fmt.Sprintf("%s usage at %.0f%% exceeds the %.0f%% threshold", name, value, high),
			Remediation: fmt.Sprintf("Investigate %s consumers on the device", strings.ToLower(name)),
		})
	}
	gauge("CPU", rec.CPUUsage, t.CPUHigh, t.CPUCritical)
	gauge("Memory", rec.MemoryUsage, t.MemoryHigh, t.MemoryCritical)
	gauge("Disk", rec.DiskUsage, t.DiskHigh, t.DiskCritical)

	for _, ifc := range rec.Interfaces {
		if ifc.Counters == nil {
			continue
		}
		errs := ifc.Counters.ErrorsIn + ifc.Counters.ErrorsOut
		if errs > t.ErrorsHigh {
			sev := models.SeverityMedium
			if errs > t.ErrorsCritical {
				sev = models.SeverityHigh
			}
			out = append(out, models.Finding{
				Category:    models.CategoryPerformance,
				Subcategory: "errors",
				Severity:    sev,
				Description: fmt.Sprintf("Interface %s has %d combined input/output errors", ifc.Name, errs),
				Remediation: "Check cabling, duplex settings, and optics on the interface",
			})
		}
		util := ifc.Counters.UtilizationIn
		if ifc.Counters.UtilizationOut > util {
			util = ifc.Counters.UtilizationOut
		}
		if util > t.UtilizationHigh {
			sev := models.SeverityMedium
			if util > t.UtilizationCrit {
				sev = models.SeverityHigh
			}
			out = append(out, models.Finding{
				Category:    models.CategoryPerformance,
				Subcategory: "utilization",
				Severity:    sev,
				Description: fmt.Sprintf("Interface %s utilization at %.0f%% exceeds the %.0f%% threshold", ifc.Name, util, t.UtilizationHigh),
				Remediation: "Review capacity or rebalance traffic on the interface",
			})
		}
	}

	return out
}

func configurationFindings(rec *models.DeviceRecord) []models.Finding {
	var out []models.Finding

	if len(rec.NTPServers) == 0 {
		out = append(out, models.Finding{
			Category:    models.CategoryConfiguration,
			Subcategory: "time-sync",
			Severity:    models.SeverityMedium,
			Description: "No time-synchronization server configured",
			Remediation: "Configure at least two NTP servers for accurate logging timestamps",
		})
	}

	if len(rec.ParseErrors) > 0 {
		out = append(out, models.Finding{
			Category:    models.CategoryConfiguration,
			Subcategory: "parse-errors",
			Severity:    models.SeverityLow,
			Description: fmt.Sprintf("%d lines could not be parsed from the source file", len(rec.ParseErrors)),
			Remediation: "Inspect the parse error log for malformed or truncated content",
		})
	}

	if len(rec.Users) == 0 {
		out = append(out, models.Finding{
			Category:    models.CategoryConfiguration,
			Subcategory: "accounts",
			Severity:    models.SeverityLow,
			Description: "No local user accounts found",
			Remediation: "Define local accounts as a fallback for remote authentication outages",
		})
	}

	if len(rec.Interfaces) > 10 {
		active := 0
		for _, ifc := range rec.Interfaces {
			if !ifc.Shutdown {
				active++
			}
		}
		ratio := float64(active) / float64(len(rec.Interfaces))
		if ratio < 0.30 {
			out = append(out, models.Finding{
				Category:    models.CategoryConfiguration,
				Subcategory: "interfaces",
				Severity:    models.SeverityLow,
				Description: fmt.Sprintf("Only %d of %d interfaces are administratively up", active, len(rec.Interfaces)),
				Remediation: "Confirm that shut interfaces are intentionally disabled",
			})
		}
	}

	return out
}

// maxMatchLen bounds the matched text echoed into pattern-search findings
const maxMatchLen = 80

// Search scans every interface's raw lines and every vendor-extension value
// for the given literal or regular-expression patterns, appending one finding
// per match and recomputing the health score afterward.
func Search(rec *models.DeviceRecord, patterns []string, useRegex bool, severity models.Severity) error {
	matchers := make([]func(string) (string, bool), 0, len(patterns))
	for _, p := range patterns {
		if useRegex {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return fmt.Errorf("invalid search pattern %q: %w", p, err)
			}
			matchers = append(matchers, func(s string) (string, bool) {
				m := re.FindString(s)
				return m, m != ""
			})
		} else {
			lit := strings.ToLower(p)
			matchers = append(matchers, func(s string) (string, bool) {
				if strings.Contains(strings.ToLower(s), lit) {
					return s, true
				}
				return "", false
			})
		}
	}

	scan := func(text, where string) {
		for i, match := range matchers {
			if m, ok := match(text); ok {
				if len(m) > maxMatchLen {
					m = m[:maxMatchLen]
				}
				rec.Findings = append(rec.Findings, models.Finding{
					Category:    models.CategorySearch,
					Subcategory: "pattern",
					Severity:    severity,
					Description: fmt.Sprintf("Pattern %q matched in %s: %s", patterns[i], where, m),
				})
			}
		}
	}

	for _, ifc := range rec.Interfaces {
		for _, line := range ifc.RawLines {
			scan(line, "interface "+ifc.Name)
		}
	}
	for _, key := range rec.ExtensionKeys() {
		for _, s := range rec.Extensions[key].Strings() {
			scan(s, "vendor extension "+key)
		}
	}

	rec.HealthScore = ComputeHealthScore(rec.Findings)
	return nil
}

func extensionText(rec *models.DeviceRecord, key string) string {
	ext, ok := rec.Extensions[key]
	if !ok {
		return ""
	}
	return strings.Join(ext.Strings(), "\n")
}

// reservedASNs extracts autonomous system numbers from the record and returns
// those in reserved or private-use ranges
func reservedASNs(rec *models.DeviceRecord) []int64 {
	ext, ok := rec.Extensions["bgp_asns"]
	if !ok {
		return nil
	}
	seen := map[int64]bool{}
	var out []int64
	for _, s := range ext.List {
		asn, err := strconv.ParseInt(s, 10, 64)
		if err != nil || seen[asn] {
			continue
		}
		seen[asn] = true
		if asn == 0 || asn == 23456 ||
			(asn >= 64496 && asn <= 64511) || // documentation range
			(asn >= 64512 && asn <= 65534) || // private use
			asn == 65535 ||
			asn >= 4200000000 { // 32-bit private use
			out = append(out, asn)
		}
	}
	return out
}

func isRoutableAddress(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() || ip.IsMulticast() {
		return false
	}
	return true
}

func isPrivateAddress(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil {
		return false
	}
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	switch {
	case v4[0] == 10:
		return true
	case v4[0] == 172 && v4[1] >= 16 && v4[1] <= 31:
		return true
	case v4[0] == 192 && v4[1] == 168:
		return true
	}
	return false
}
