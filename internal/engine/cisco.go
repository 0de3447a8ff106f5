package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"netlens/internal/anomaly"
	"netlens/internal/models"
)

// CiscoEngine extracts records from Cisco IOS style configuration and show
// command output. The syntax is indentation based: top-level commands start
// in column zero, commands belonging to an open block are indented.
type CiscoEngine struct {
	evalLimits
	signals []signal
}

// NewCiscoEngine creates a Cisco IOS extraction engine
func NewCiscoEngine() *CiscoEngine {
	return &CiscoEngine{
		evalLimits: evalLimits{thresholds: anomaly.DefaultThresholds()},
		signals: []signal{
			{regexp.MustCompile(`(?im)^hostname\s+\S+`), 20},
			{regexp.MustCompile(`(?im)^interface\s+(GigabitEthernet|FastEthernet|TenGigabitEthernet|Ethernet|Serial|Loopback|Vlan|Port-channel)`), 25},
			{regexp.MustCompile(`(?i)\bCisco IOS\b|\bcisco\b`), 20},
			{regexp.MustCompile(`(?im)^(ip access-list|access-list)\s`), 10},
			{regexp.MustCompile(`(?im)^switchport\s|^\s+switchport\s`), 10},
			{regexp.MustCompile(`(?im)^router\s+(bgp|ospf|eigrp|rip)\b`), 10},
			{regexp.MustCompile(`(?im)^(enable secret|service password-encryption|spanning-tree mode)\b`), 10},
			{regexp.MustCompile(`(?im)^(Current|Building) configuration`), 10},
		},
	}
}

// Vendor returns the engine's stable identity
func (e *CiscoEngine) Vendor() models.VendorID { return models.VendorCisco }

// CanParse is a cheap keyword test over the sample's leading lines
func (e *CiscoEngine) CanParse(sample string) bool {
	return e.ConfidenceScore(sample) >= 25
}

// ConfidenceScore is a weighted sum of independent signal matches, capped at 100
func (e *CiscoEngine) ConfidenceScore(sample string) int {
	return scoreSignals(sample, e.signals)
}

var (
	ciscoHostnameRe  = regexp.MustCompile(`(?i)^hostname\s+(\S+)`)
	ciscoInterfaceRe = regexp.MustCompile(`(?i)^interface\s+(\S+)`)
	ciscoVlanRe      = regexp.MustCompile(`(?i)^vlan\s+([\d\s,to-]+)\s*$`)
	ciscoACLNameRe   = regexp.MustCompile(`(?i)^ip access-list\s+(?:standard|extended)\s+(\S+)`)
	ciscoACLNumRe    = regexp.MustCompile(`(?i)^access-list\s+(\d+)\s`)
	ciscoUserRe      = regexp.MustCompile(`(?i)^username\s+(\S+)`)
	ciscoNTPRe       = regexp.MustCompile(`(?i)^ntp server\s+(\S+)`)
	ciscoBGPRe       = regexp.MustCompile(`(?i)^router bgp\s+(\d+)`)
	ciscoNeighborRe  = regexp.MustCompile(`(?i)^\s*neighbor\s+(\S+)\s+remote-as\s+(\d+)`)
	ciscoVersionRe   = regexp.MustCompile(`(?i)Cisco IOS Software.*Version\s+([\w.()]+)`)
	ciscoVerLineRe   = regexp.MustCompile(`(?i)^version\s+([\d.]+)\s*$`)
	ciscoSerialRe    = regexp.MustCompile(`(?i)^Processor board ID\s+(\S+)`)
	ciscoModelRe     = regexp.MustCompile(`(?i)^cisco\s+(\S+)\s+.*(?:processor|chassis)`)
	ciscoCPURe       = regexp.MustCompile(`(?i)^CPU utilization for (?:five seconds|one minute)[^\d]*(\d+)%`)
	ciscoIPAddrRe    = regexp.MustCompile(`(?i)^ip address\s+(.+)$`)
	ciscoDescRe      = regexp.MustCompile(`(?i)^description\s+(.*)$`)
	ciscoAccessVlan  = regexp.MustCompile(`(?i)^switchport access vlan\s+(\d+)`)
	ciscoTrunkVlans  = regexp.MustCompile(`(?i)^switchport trunk allowed vlan\s+(?:add\s+)?(.+)$`)
	ciscoStandbyRe   = regexp.MustCompile(`(?i)^(standby|vrrp)\s+(\d+)\s+`)
	ciscoInputErrRe  = regexp.MustCompile(`(?i)(\d+)\s+input errors`)
	ciscoOutputErrRe = regexp.MustCompile(`(?i)(\d+)\s+output errors`)
)

// Parse consumes the file in a single forward pass, tracking an explicit
// open-interface context
func (e *CiscoEngine) Parse(ctx context.Context, path string) (*models.DeviceRecord, error) {
	rec := models.NewDeviceRecord(path)
	rec.Vendor = models.VendorCisco
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

func (e *CiscoEngine) processLine(st *parseState, raw string) (lineOutcome, string) {
	rec := st.rec
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return lineSkip, ""
	}

	indented := raw != "" && (raw[0] == ' ' || raw[0] == '\t')
	nested := indented && (st.current() != nil || st.section == "bgp")

	// "!" and "end" terminate the current block at top level.
	if !nested && (trimmed == "!" || strings.EqualFold(trimmed, "end")) {
		st.closeInterface()
		st.section = ""
		return lineSkip, ""
	}

	if nested {
		return e.processNested(st, trimmed)
	}

	st.closeInterface()

	switch {
	case ciscoHostnameRe.MatchString(trimmed):
		rec.DeviceName = ciscoHostnameRe.FindStringSubmatch(trimmed)[1]
		st.section = ""
	case ciscoInterfaceRe.MatchString(trimmed):
		name := ciscoInterfaceRe.FindStringSubmatch(trimmed)[1]
		st.openInterface(name, classifyInterfaceName(name))
		st.section = "interface"
	case ciscoVlanRe.MatchString(trimmed):
		spec := ciscoVlanRe.FindStringSubmatch(trimmed)[1]
		ids := parseVLANList(spec)
		if len(ids) == 0 {
			return lineError, "unparseable vlan declaration: " + trimmed
		}
		for _, id := range ids {
			rec.AddVLAN(id)
		}
		st.section = "vlan"
	case ciscoACLNameRe.MatchString(trimmed):
		rec.AddACL(ciscoACLNameRe.FindStringSubmatch(trimmed)[1])
		st.section = "acl"
	case ciscoACLNumRe.MatchString(trimmed):
		rec.AddACL(ciscoACLNumRe.FindStringSubmatch(trimmed)[1])
		st.section = "acl"
	case ciscoUserRe.MatchString(trimmed):
		rec.AddUser(ciscoUserRe.FindStringSubmatch(trimmed)[1])
	case ciscoNTPRe.MatchString(trimmed):
		rec.AddNTPServer(ciscoNTPRe.FindStringSubmatch(trimmed)[1])
	case ciscoBGPRe.MatchString(trimmed):
		rec.AppendExtensionList("bgp_asns", ciscoBGPRe.FindStringSubmatch(trimmed)[1])
		rec.AppendExtensionList("routing_config", trimmed)
		st.section = "bgp"
	case ciscoVersionRe.MatchString(trimmed):
		rec.SoftwareVersion = ciscoVersionRe.FindStringSubmatch(trimmed)[1]
	case ciscoVerLineRe.MatchString(trimmed):
		if rec.SoftwareVersion == "" {
			rec.SoftwareVersion = ciscoVerLineRe.FindStringSubmatch(trimmed)[1]
		}
	case ciscoSerialRe.MatchString(trimmed):
		rec.SerialNumber = ciscoSerialRe.FindStringSubmatch(trimmed)[1]
	case ciscoModelRe.MatchString(trimmed):
		rec.Model = ciscoModelRe.FindStringSubmatch(trimmed)[1]
	case ciscoCPURe.MatchString(trimmed):
		if v, err := strconv.ParseFloat(ciscoCPURe.FindStringSubmatch(trimmed)[1], 64); err == nil {
			rec.CPUUsage = v
		}
	default:
		if scanDiscovery(st, raw) {
			return lineOK, ""
		}
		return lineSkip, ""
	}
	scanDiscovery(st, raw)
	return lineOK, ""
}

func (e *CiscoEngine) processNested(st *parseState, trimmed string) (lineOutcome, string) {
	rec := st.rec

	// Nested routing-protocol statements are collected even while an
	// interface block is open elsewhere in tech-support dumps.
	if st.section == "bgp" {
		rec.AppendExtensionList("routing_config", trimmed)
		if m := ciscoNeighborRe.FindStringSubmatch(trimmed); m != nil {
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
	case ciscoDescRe.MatchString(trimmed):
		cur.Description = ciscoDescRe.FindStringSubmatch(trimmed)[1]
	case ciscoIPAddrRe.MatchString(trimmed):
		addr, mask := splitAddressMask(ciscoIPAddrRe.FindStringSubmatch(trimmed)[1])
		if addr == "" {
			return lineError, "unparseable ip address: " + trimmed
		}
		cur.IPAddress = addr
		cur.SubnetMask = mask
	case strings.EqualFold(trimmed, "shutdown"):
		cur.Shutdown = true
		cur.Status = "down"
	case strings.EqualFold(trimmed, "no shutdown"):
		cur.Shutdown = false
		cur.Status = "up"
	case ciscoAccessVlan.MatchString(trimmed):
		if id, err := strconv.Atoi(ciscoAccessVlan.FindStringSubmatch(trimmed)[1]); err == nil {
			cur.VLANs = append(cur.VLANs, id)
			rec.AddVLAN(id)
		}
	case ciscoTrunkVlans.MatchString(trimmed):
		for _, id := range parseVLANList(ciscoTrunkVlans.FindStringSubmatch(trimmed)[1]) {
			cur.VLANs = append(cur.VLANs, id)
			rec.AddVLAN(id)
		}
	case ciscoStandbyRe.MatchString(trimmed):
		m := ciscoStandbyRe.FindStringSubmatch(trimmed)
		rec.AppendExtensionList("redundancy_groups", m[1]+" group "+m[2]+" on "+cur.Name)
	case ciscoInputErrRe.MatchString(trimmed):
		if n, err := strconv.ParseInt(ciscoInputErrRe.FindStringSubmatch(trimmed)[1], 10, 64); err == nil {
			if cur.Counters == nil {
				cur.Counters = &models.InterfaceCounters{}
			}
			cur.Counters.ErrorsIn = n
		}
	case ciscoOutputErrRe.MatchString(trimmed):
		if n, err := strconv.ParseInt(ciscoOutputErrRe.FindStringSubmatch(trimmed)[1], 10, 64); err == nil {
			if cur.Counters == nil {
				cur.Counters = &models.InterfaceCounters{}
			}
			cur.Counters.ErrorsOut = n
		}
	default:
		// Unknown syntax inside a recognized interface block is tolerated.
		scanDiscovery(st, trimmed)
		return lineSkip, ""
	}
	scanDiscovery(st, trimmed)
	return lineOK, ""
}
