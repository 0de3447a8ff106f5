package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"netlens/internal/anomaly"
	"netlens/internal/models"
)

// HuaweiEngine extracts records from Huawei VRP style configuration and
// display command output. Like IOS the syntax is indentation based, but
// sections are separated by "#" lines and negation uses the "undo" keyword.
type HuaweiEngine struct {
	evalLimits
	signals []signal
}

// NewHuaweiEngine creates a Huawei VRP extraction engine
func NewHuaweiEngine() *HuaweiEngine {
	return &HuaweiEngine{
		evalLimits: evalLimits{thresholds: anomaly.DefaultThresholds()},
		signals: []signal{
			{regexp.MustCompile(`(?im)^sysname\s+\S+`), 25},
			{regexp.MustCompile(`(?im)^vlan batch\b`), 20},
			{regexp.MustCompile(`(?i)\bHUAWEI\b|\bVRP\b`), 20},
			{regexp.MustCompile(`(?im)^undo\s+\S+`), 15},
			{regexp.MustCompile(`(?im)^interface\s+(GigabitEthernet|XGigabitEthernet|Ethernet|Vlanif|MEth|Eth-Trunk)`), 15},
			{regexp.MustCompile(`(?im)^(local-user|ntp-service|acl number)\b`), 10},
			{regexp.MustCompile(`(?im)^return\s*$`), 5},
			{regexp.MustCompile(`(?im)^port (default|trunk|link-type)\b`), 5},
		},
	}
}

// Vendor returns the engine's stable identity
func (e *HuaweiEngine) Vendor() models.VendorID { return models.VendorHuawei }

// CanParse is a cheap keyword test over the sample's leading lines
func (e *HuaweiEngine) CanParse(sample string) bool {
	return e.ConfidenceScore(sample) >= 25
}

// ConfidenceScore is a weighted sum of independent signal matches, capped at 100
func (e *HuaweiEngine) ConfidenceScore(sample string) int {
	return scoreSignals(sample, e.signals)
}

var (
	hwSysnameRe   = regexp.MustCompile(`(?i)^sysname\s+(\S+)`)
	hwInterfaceRe = regexp.MustCompile(`(?i)^interface\s+(\S+)`)
	hwVlanBatchRe = regexp.MustCompile(`(?i)^vlan batch\s+(.+)$`)
	hwVlanRe      = regexp.MustCompile(`(?i)^vlan\s+(\d{1,4})\s*$`)
	hwACLRe       = regexp.MustCompile(`(?i)^acl (?:number\s+(\d+)|name\s+(\S+))`)
	hwUserRe      = regexp.MustCompile(`(?i)^local-user\s+(\S+)`)
	hwNTPRe       = regexp.MustCompile(`(?i)^ntp-service unicast-server\s+(\S+)`)
	hwBGPRe       = regexp.MustCompile(`(?i)^bgp\s+(\d+)\s*$`)
	hwPeerRe      = regexp.MustCompile(`(?i)^peer\s+(\S+)\s+as-number\s+(\d+)`)
	hwVersionRe   = regexp.MustCompile(`(?i)VRP.*software.*Version\s+([\w.()]+)`)
	hwModelRe     = regexp.MustCompile(`(?i)^HUAWEI\s+(\S+)\s+(?:Routing Switch|Router|uptime)`)
	hwDescRe      = regexp.MustCompile(`(?i)^description\s+(.*)$`)
	hwIPAddrRe    = regexp.MustCompile(`(?i)^ip address\s+(.+)$`)
	hwPortVlanRe  = regexp.MustCompile(`(?i)^port default vlan\s+(\d+)`)
	hwTrunkRe     = regexp.MustCompile(`(?i)^port trunk allow-pass vlan\s+(.+)$`)
	hwVrrpRe      = regexp.MustCompile(`(?i)^vrrp vrid\s+(\d+)\s+`)
	hwCPURe       = regexp.MustCompile(`(?i)CPU Usage\s*:\s*(\d+)%`)
	hwMemRe       = regexp.MustCompile(`(?i)Memory Usage\s*:\s*(\d+)%`)
)

// Parse consumes the file in a single forward pass. Sections are closed by
// "#" separator lines rather than dedentation alone.
func (e *HuaweiEngine) Parse(ctx context.Context, path string) (*models.DeviceRecord, error) {
	rec := models.NewDeviceRecord(path)
	rec.Vendor = models.VendorHuawei
	st := newParseState(rec)

	err := forEachLine(ctx, path, rec, func(num int, raw string) (lineOutcome, string) {
		return e.processLine(st, raw)
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

func (e *HuaweiEngine) processLine(st *parseState, raw string) (lineOutcome, string) {
	rec := st.rec
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return lineSkip, ""
	}

	if trimmed == "#" || strings.EqualFold(trimmed, "return") {
		st.closeInterface()
		st.section = ""
		return lineSkip, ""
	}

	indented := raw[0] == ' ' || raw[0] == '\t'
	if indented && (st.current() != nil || st.section == "bgp") {
		return e.processNested(st, trimmed)
	}

	st.closeInterface()

	switch {
	case hwSysnameRe.MatchString(trimmed):
		rec.SystemName = hwSysnameRe.FindStringSubmatch(trimmed)[1]
		st.section = ""
	case hwInterfaceRe.MatchString(trimmed):
		name := hwInterfaceRe.FindStringSubmatch(trimmed)[1]
		st.openInterface(name, classifyInterfaceName(name))
		st.section = "interface"
	case hwVlanBatchRe.MatchString(trimmed):
		ids := parseVLANList(hwVlanBatchRe.FindStringSubmatch(trimmed)[1])
		if len(ids) == 0 {
			return lineError, "unparseable vlan batch: " + trimmed
		}
		for _, id := range ids {
			rec.AddVLAN(id)
		}
	case hwVlanRe.MatchString(trimmed):
		if id, err := strconv.Atoi(hwVlanRe.FindStringSubmatch(trimmed)[1]); err == nil {
			rec.AddVLAN(id)
		}
		st.section = "vlan"
	case hwACLRe.MatchString(trimmed):
		m := hwACLRe.FindStringSubmatch(trimmed)
		if m[1] != "" {
			rec.AddACL(m[1])
		} else {
			rec.AddACL(m[2])
		}
		st.section = "acl"
	case hwUserRe.MatchString(trimmed):
		rec.AddUser(hwUserRe.FindStringSubmatch(trimmed)[1])
	case hwNTPRe.MatchString(trimmed):
		rec.AddNTPServer(hwNTPRe.FindStringSubmatch(trimmed)[1])
	case hwBGPRe.MatchString(trimmed):
		rec.AppendExtensionList("bgp_asns", hwBGPRe.FindStringSubmatch(trimmed)[1])
		rec.AppendExtensionList("routing_config", trimmed)
		st.section = "bgp"
	case hwVersionRe.MatchString(trimmed):
		rec.SoftwareVersion = hwVersionRe.FindStringSubmatch(trimmed)[1]
	case hwModelRe.MatchString(trimmed):
		rec.Model = hwModelRe.FindStringSubmatch(trimmed)[1]
	case hwCPURe.MatchString(trimmed):
		if v, err := strconv.ParseFloat(hwCPURe.FindStringSubmatch(trimmed)[1], 64); err == nil {
			rec.CPUUsage = v
		}
	case hwMemRe.MatchString(trimmed):
		if v, err := strconv.ParseFloat(hwMemRe.FindStringSubmatch(trimmed)[1], 64); err == nil {
			rec.MemoryUsage = v
		}
	default:
		// Unindented peer/port lines occur in configs exported without
		// leading whitespace; route them through the nested handler when a
		// section is open.
		if st.section == "bgp" || st.current() != nil {
			return e.processNested(st, trimmed)
		}
		if scanDiscovery(st, raw) {
			return lineOK, ""
		}
		return lineSkip, ""
	}
	scanDiscovery(st, raw)
	return lineOK, ""
}

func (e *HuaweiEngine) processNested(st *parseState, trimmed string) (lineOutcome, string) {
	rec := st.rec

	if st.section == "bgp" {
		rec.AppendExtensionList("routing_config", trimmed)
		if m := hwPeerRe.FindStringSubmatch(trimmed); m != nil {
			rec.AddBGPPeer(m[1])
			rec.AppendExtensionList("bgp_asns", m[2])
		}
		return lineOK, ""
	}

	cur := st.current()
	if cur == nil {
		return lineSkip, ""
	}
	cur.RawLines = append(cur.RawLines, trimmed)

	switch {
	case hwDescRe.MatchString(trimmed):
		cur.Description = hwDescRe.FindStringSubmatch(trimmed)[1]
	case hwIPAddrRe.MatchString(trimmed):
		addr, mask := splitAddressMask(hwIPAddrRe.FindStringSubmatch(trimmed)[1])
		if addr == "" {
			return lineError, "unparseable ip address: " + trimmed
		}
		cur.IPAddress = addr
		cur.SubnetMask = mask
	case strings.EqualFold(trimmed, "shutdown"):
		cur.Shutdown = true
		cur.Status = "down"
	case strings.EqualFold(trimmed, "undo shutdown"):
		cur.Shutdown = false
		cur.Status = "up"
	case hwPortVlanRe.MatchString(trimmed):
		if id, err := strconv.Atoi(hwPortVlanRe.FindStringSubmatch(trimmed)[1]); err == nil {
			cur.VLANs = append(cur.VLANs, id)
			rec.AddVLAN(id)
		}
	case hwTrunkRe.MatchString(trimmed):
		for _, id := range parseVLANList(hwTrunkRe.FindStringSubmatch(trimmed)[1]) {
			cur.VLANs = append(cur.VLANs, id)
			rec.AddVLAN(id)
		}
	case hwVrrpRe.MatchString(trimmed):
		rec.AppendExtensionList("redundancy_groups", "vrrp vrid "+hwVrrpRe.FindStringSubmatch(trimmed)[1]+" on "+cur.Name)
	default:
		scanDiscovery(st, trimmed)
		return lineSkip, ""
	}
	scanDiscovery(st, trimmed)
	return lineOK, ""
}
