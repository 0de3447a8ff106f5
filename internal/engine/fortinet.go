package engine

import (
	"context"
	"regexp"
	"strings"

	"netlens/internal/anomaly"
	"netlens/internal/models"
)

// FortinetEngine extracts records from FortiOS configuration dumps. Structure
// comes from "config <section>" / "edit <entry>" / "next" / "end" keywords;
// field assignments use "set <name> <value...>".
type FortinetEngine struct {
	evalLimits
	signals []signal
}

// NewFortinetEngine creates a FortiOS extraction engine
func NewFortinetEngine() *FortinetEngine {
	return &FortinetEngine{
		evalLimits: evalLimits{thresholds: anomaly.DefaultThresholds()},
		signals: []signal{
			{regexp.MustCompile(`(?im)^config system interface\b`), 30},
			{regexp.MustCompile(`(?im)^config (system|firewall|router|vpn)\b`), 25},
			{regexp.MustCompile(`(?im)^\s*edit\s+"`), 15},
			{regexp.MustCompile(`(?i)\bFortiGate\b|\bFortiOS\b|\bfortinet\b`), 20},
			{regexp.MustCompile(`(?im)^\s*set hostname\b`), 10},
			{regexp.MustCompile(`(?im)^\s*next\s*$`), 10},
			{regexp.MustCompile(`(?im)^#config-version=`), 15},
		},
	}
}

// Vendor returns the engine's stable identity
func (e *FortinetEngine) Vendor() models.VendorID { return models.VendorFortinet }

// CanParse is a cheap keyword test over the sample's leading lines
func (e *FortinetEngine) CanParse(sample string) bool {
	return e.ConfidenceScore(sample) >= 25
}

// ConfidenceScore is a weighted sum of independent signal matches, capped at 100
func (e *FortinetEngine) ConfidenceScore(sample string) int {
	return scoreSignals(sample, e.signals)
}

var (
	ftnConfigRe = regexp.MustCompile(`(?i)^config\s+(.+)$`)
	ftnEditRe   = regexp.MustCompile(`(?i)^edit\s+"?([^"]+)"?\s*$`)
	ftnSetRe    = regexp.MustCompile(`(?i)^set\s+(\S+)\s+(.+)$`)
	ftnVerTagRe = regexp.MustCompile(`(?i)^#config-version=(\S+?)-([\d.]+)-`)
	ftnSerialRe = regexp.MustCompile(`(?i)^Serial-Number:\s*(\S+)`)
	ftnVlanIDRe = regexp.MustCompile(`^\d{1,4}$`)
)

// fortiState tracks the config-section path and the entity being edited
type fortiState struct {
	sections []string
	editing  string
}

func (fs *fortiState) path() string {
	return strings.ToLower(strings.Join(fs.sections, "/"))
}

// Parse consumes the file in a single forward pass, tracking the
// config/edit/next/end block structure
func (e *FortinetEngine) Parse(ctx context.Context, path string) (*models.DeviceRecord, error) {
	rec := models.NewDeviceRecord(path)
	rec.Vendor = models.VendorFortinet
	st := newParseState(rec)
	fs := &fortiState{}

	err := forEachLine(ctx, path, rec, func(num int, raw string) (lineOutcome, string) {
		return e.processLine(st, fs, raw)
	})
	if err != nil {
		return nil, err
	}

	st.closeInterface()
	finishRecord(rec)
	if rec.ManagementIP == "" {
		for _, ifc := range rec.Interfaces {
			if ifc.IPAddress != "" && looksLikeManagement(ifc.Name) {
				rec.ManagementIP = ifc.IPAddress
				break
			}
		}
	}
	e.evaluate(rec)
	return rec, nil
}

func (e *FortinetEngine) processLine(st *parseState, fs *fortiState, raw string) (lineOutcome, string) {
	rec := st.rec
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return lineSkip, ""
	}

	if m := ftnVerTagRe.FindStringSubmatch(trimmed); m != nil {
		rec.Model = m[1]
		rec.SoftwareVersion = m[2]
		return lineOK, ""
	}
	if m := ftnSerialRe.FindStringSubmatch(trimmed); m != nil {
		rec.SerialNumber = m[1]
		return lineOK, ""
	}

	switch {
	case strings.EqualFold(trimmed, "end"):
		if len(fs.sections) > 0 {
			fs.sections = fs.sections[:len(fs.sections)-1]
		}
		fs.editing = ""
		st.closeInterface()
		return lineSkip, ""
	case strings.EqualFold(trimmed, "next"):
		fs.editing = ""
		st.closeInterface()
		return lineSkip, ""
	}

	if m := ftnConfigRe.FindStringSubmatch(trimmed); m != nil {
		fs.sections = append(fs.sections, m[1])
		return lineOK, ""
	}

	if m := ftnEditRe.FindStringSubmatch(trimmed); m != nil {
		fs.editing = m[1]
		switch fs.path() {
		case "system interface":
			st.openInterface(fs.editing, classifyInterfaceName(fs.editing))
		case "system admin":
			rec.AddUser(fs.editing)
		case "firewall policy", "firewall acl", "router access-list":
			rec.AddACL(fs.editing)
		case "system interface/vlan", "system switch-interface":
			// nothing extra; set vlanid below carries the number
		}
		return lineOK, ""
	}

	if m := ftnSetRe.FindStringSubmatch(trimmed); m != nil {
		return e.processSet(st, fs, m[1], strings.Trim(m[2], `"`))
	}

	if scanDiscovery(st, raw) {
		return lineOK, ""
	}
	return lineSkip, ""
}

func (e *FortinetEngine) processSet(st *parseState, fs *fortiState, key, value string) (lineOutcome, string) {
	rec := st.rec
	path := fs.path()

	if cur := st.current(); cur != nil && path == "system interface" {
		cur.RawLines = append(cur.RawLines, "set "+key+" "+value)
		switch strings.ToLower(key) {
		case "description", "alias":
			cur.Description = value
		case "ip":
			addr, mask := splitAddressMask(value)
			if addr == "" {
				return lineError, "unparseable interface ip: " + value
			}
			cur.IPAddress = addr
			cur.SubnetMask = mask
		case "status":
			if strings.EqualFold(value, "down") {
				cur.Shutdown = true
				cur.Status = "down"
			} else {
				cur.Shutdown = false
				cur.Status = "up"
			}
		case "vlanid":
			if ftnVlanIDRe.MatchString(value) {
				ids, ok := expandVLANRange(value)
				if !ok {
					return lineError, "unparseable vlanid: " + value
				}
				cur.VLANs = append(cur.VLANs, ids...)
				for _, id := range ids {
					rec.AddVLAN(id)
				}
			}
		}
		scanDiscovery(st, "set "+key+" "+value)
		return lineOK, ""
	}

	switch {
	case path == "system global" && strings.EqualFold(key, "hostname"):
		rec.DeviceName = value
	case path == "system ntp/ntpserver" && strings.EqualFold(key, "server"):
		rec.AddNTPServer(value)
	case strings.HasPrefix(path, "router bgp"):
		rec.AppendExtensionList("routing_config", "set "+key+" "+value)
		if strings.EqualFold(key, "as") {
			rec.AppendExtensionList("bgp_asns", value)
		}
		if strings.EqualFold(key, "remote-as") {
			rec.AppendExtensionList("bgp_asns", value)
			if fs.editing != "" {
				rec.AddBGPPeer(fs.editing)
			}
		}
	case strings.EqualFold(key, "hostname"):
		if rec.DeviceName == "" {
			rec.DeviceName = value
		}
	default:
		scanDiscovery(st, "set "+key+" "+value)
		return lineSkip, ""
	}
	return lineOK, ""
}
