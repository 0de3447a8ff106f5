package engine

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"netlens/internal/anomaly"
	"netlens/internal/models"
)

// JuniperEngine extracts records from Junos curly-brace configuration and
// "set" style command listings. Structure comes from "{" and "}" tokens
// rather than indentation, so the engine maintains an explicit block stack.
type JuniperEngine struct {
	evalLimits
	signals []signal
}

// NewJuniperEngine creates a Junos extraction engine
func NewJuniperEngine() *JuniperEngine {
	return &JuniperEngine{
		evalLimits: evalLimits{thresholds: anomaly.DefaultThresholds()},
		signals: []signal{
			{regexp.MustCompile(`(?im)^\s*host-name\s+\S+;`), 25},
			{regexp.MustCompile(`(?im)^(system|interfaces|protocols|vlans|firewall)\s*\{`), 25},
			{regexp.MustCompile(`(?im)^set\s+(system|interfaces|protocols|vlans)\s`), 20},
			{regexp.MustCompile(`(?i)\bJUNOS\b|\bjuniper\b`), 20},
			{regexp.MustCompile(`(?im)^\s*unit\s+\d+\s*\{`), 10},
			{regexp.MustCompile(`(?im)^\s*family\s+inet\b`), 10},
			{regexp.MustCompile(`(?im)^\s*\S+;\s*$`), 5},
		},
	}
}

// Vendor returns the engine's stable identity
func (e *JuniperEngine) Vendor() models.VendorID { return models.VendorJuniper }

// CanParse is a cheap keyword test over the sample's leading lines
func (e *JuniperEngine) CanParse(sample string) bool {
	return e.ConfidenceScore(sample) >= 25
}

// ConfidenceScore is a weighted sum of independent signal matches, capped at 100
func (e *JuniperEngine) ConfidenceScore(sample string) int {
	return scoreSignals(sample, e.signals)
}

var (
	jnprBlockOpenRe = regexp.MustCompile(`^(\S.*?)\s*\{\s*$`)
	jnprHostnameRe  = regexp.MustCompile(`(?i)^host-name\s+(\S+?);`)
	jnprVersionRe   = regexp.MustCompile(`(?i)^version\s+(\S+?);`)
	jnprDescRe      = regexp.MustCompile(`(?i)^description\s+"?([^";]*)"?;`)
	jnprAddressRe   = regexp.MustCompile(`(?i)^address\s+(\S+?);`)
	jnprVlanIDRe    = regexp.MustCompile(`(?i)^vlan-id\s+(\d+);`)
	jnprVlanListRe  = regexp.MustCompile(`(?i)^vlan-id-list\s+\[?([^\];]+)\]?;`)
	jnprNeighborRe  = regexp.MustCompile(`(?i)^neighbor\s+(\S+?);`)
	jnprPeerASRe    = regexp.MustCompile(`(?i)^peer-as\s+(\d+);`)
	jnprNTPServerRe = regexp.MustCompile(`(?i)^server\s+(\S+?);`)
	jnprUserBlockRe = regexp.MustCompile(`(?i)^user\s+(\S+)$`)
	jnprFilterRe    = regexp.MustCompile(`(?i)^filter\s+(\S+)$`)
	jnprSetRe       = regexp.MustCompile(`(?i)^set\s+(.+)$`)
	jnprModelRe     = regexp.MustCompile(`(?i)^Model:\s+(\S+)`)
	jnprJunosVerRe  = regexp.MustCompile(`(?i)^Junos:\s+(\S+)`)
)

// Parse consumes the file in a single forward pass, tracking the brace
// nesting stack and the open interface context
func (e *JuniperEngine) Parse(ctx context.Context, path string) (*models.DeviceRecord, error) {
	rec := models.NewDeviceRecord(path)
	rec.Vendor = models.VendorJuniper
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

func (st *parseState) stackContains(name string) bool {
	for _, b := range st.stack {
		if strings.EqualFold(b, name) {
			return true
		}
	}
	return false
}

func (e *JuniperEngine) processLine(st *parseState, raw string) (lineOutcome, string) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") || strings.HasPrefix(trimmed, "/*") {
		return lineSkip, ""
	}

	// "set" style flat commands appear in exported candidate configs.
	if m := jnprSetRe.FindStringSubmatch(trimmed); m != nil && len(st.stack) == 0 {
		return e.processSet(st, m[1])
	}

	if trimmed == "}" {
		e.popBlock(st)
		return lineSkip, ""
	}

	if m := jnprBlockOpenRe.FindStringSubmatch(trimmed); m != nil {
		e.pushBlock(st, m[1])
		return lineOK, ""
	}

	return e.processStatement(st, trimmed, raw)
}

func (e *JuniperEngine) pushBlock(st *parseState, name string) {
	st.stack = append(st.stack, name)
	rec := st.rec

	// interfaces { ge-0/0/0 { ... } } opens an interface context at depth 2.
	if len(st.stack) == 2 && strings.EqualFold(st.stack[0], "interfaces") {
		st.openInterface(name, classifyInterfaceName(name))
		return
	}
	// unit blocks belong to the enclosing interface.
	if cur := st.current(); cur != nil && strings.HasPrefix(strings.ToLower(name), "unit ") {
		cur.RawLines = append(cur.RawLines, name+" {")
		return
	}
	if len(st.stack) == 2 && strings.EqualFold(st.stack[0], "vlans") {
		// Named VLAN block; the vlan-id statement inside carries the number.
		return
	}
	if strings.EqualFold(st.stack[0], "firewall") {
		if m := jnprFilterRe.FindStringSubmatch(name); m != nil {
			rec.AddACL(m[1])
		}
	}
	if st.stackContains("login") {
		if m := jnprUserBlockRe.FindStringSubmatch(name); m != nil {
			rec.AddUser(m[1])
		}
	}
}

func (e *JuniperEngine) popBlock(st *parseState) {
	if len(st.stack) == 0 {
		return
	}
	leaving := st.stack[len(st.stack)-1]
	st.stack = st.stack[:len(st.stack)-1]

	// Leaving the per-interface block closes the interface context.
	if len(st.stack) == 1 && strings.EqualFold(st.stack[0], "interfaces") {
		st.closeInterface()
	} else if cur := st.current(); cur != nil && strings.HasPrefix(strings.ToLower(leaving), "unit ") {
		cur.RawLines = append(cur.RawLines, "}")
	}
	if len(st.stack) == 0 {
		st.closeInterface()
	}
}

func (e *JuniperEngine) processStatement(st *parseState, trimmed, raw string) (lineOutcome, string) {
	rec := st.rec

	if cur := st.current(); cur != nil {
		cur.RawLines = append(cur.RawLines, trimmed)
		switch {
		case jnprDescRe.MatchString(trimmed):
			cur.Description = jnprDescRe.FindStringSubmatch(trimmed)[1]
		case jnprAddressRe.MatchString(trimmed) && st.stackContains("family inet"):
			addr, mask := splitAddressMask(jnprAddressRe.FindStringSubmatch(trimmed)[1])
			if addr == "" {
				return lineError, "unparseable address: " + trimmed
			}
			cur.IPAddress = addr
			cur.SubnetMask = mask
		case strings.EqualFold(trimmed, "disable;"):
			cur.Shutdown = true
			cur.Status = "down"
		case jnprVlanIDRe.MatchString(trimmed):
			if id, err := strconv.Atoi(jnprVlanIDRe.FindStringSubmatch(trimmed)[1]); err == nil {
				cur.VLANs = append(cur.VLANs, id)
				rec.AddVLAN(id)
			}
		default:
			scanDiscovery(st, trimmed)
			return lineSkip, ""
		}
		scanDiscovery(st, trimmed)
		return lineOK, ""
	}

	switch {
	case jnprHostnameRe.MatchString(trimmed):
		rec.DeviceName = jnprHostnameRe.FindStringSubmatch(trimmed)[1]
	case jnprVersionRe.MatchString(trimmed) && len(st.stack) <= 1:
		rec.SoftwareVersion = jnprVersionRe.FindStringSubmatch(trimmed)[1]
	case jnprJunosVerRe.MatchString(trimmed):
		rec.SoftwareVersion = jnprJunosVerRe.FindStringSubmatch(trimmed)[1]
	case jnprModelRe.MatchString(trimmed):
		rec.Model = jnprModelRe.FindStringSubmatch(trimmed)[1]
	case jnprVlanIDRe.MatchString(trimmed) && st.stackContains("vlans"):
		if id, err := strconv.Atoi(jnprVlanIDRe.FindStringSubmatch(trimmed)[1]); err == nil {
			rec.AddVLAN(id)
		}
	case jnprVlanListRe.MatchString(trimmed) && st.stackContains("vlans"):
		ids := parseVLANList(jnprVlanListRe.FindStringSubmatch(trimmed)[1])
		if len(ids) == 0 {
			return lineError, "unparseable vlan-id-list: " + trimmed
		}
		for _, id := range ids {
			rec.AddVLAN(id)
		}
	case jnprNeighborRe.MatchString(trimmed) && st.stackContains("bgp"):
		rec.AddBGPPeer(jnprNeighborRe.FindStringSubmatch(trimmed)[1])
		rec.AppendExtensionList("routing_config", trimmed)
	case jnprPeerASRe.MatchString(trimmed) && st.stackContains("bgp"):
		rec.AppendExtensionList("bgp_asns", jnprPeerASRe.FindStringSubmatch(trimmed)[1])
		rec.AppendExtensionList("routing_config", trimmed)
	case jnprNTPServerRe.MatchString(trimmed) && st.stackContains("ntp"):
		rec.AddNTPServer(jnprNTPServerRe.FindStringSubmatch(trimmed)[1])
	default:
		if st.stackContains("bgp") {
			rec.AppendExtensionList("routing_config", trimmed)
			return lineOK, ""
		}
		if scanDiscovery(st, raw) {
			return lineOK, ""
		}
		return lineSkip, ""
	}
	scanDiscovery(st, raw)
	return lineOK, ""
}

// processSet handles flat "set ..." command output
func (e *JuniperEngine) processSet(st *parseState, rest string) (lineOutcome, string) {
	rec := st.rec
	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return lineSkip, ""
	}

	switch fields[0] {
	case "system":
		if fields[1] == "host-name" && len(fields) >= 3 {
			rec.DeviceName = fields[2]
			return lineOK, ""
		}
		if len(fields) >= 4 && fields[1] == "ntp" && fields[2] == "server" {
			rec.AddNTPServer(fields[3])
			return lineOK, ""
		}
		if len(fields) >= 4 && fields[1] == "login" && fields[2] == "user" {
			rec.AddUser(fields[3])
			return lineOK, ""
		}
	case "interfaces":
		if len(fields) < 2 {
			return lineSkip, ""
		}
		name := fields[1]
		rest := fields[2:]
		// set interfaces ge-0/0/0 unit 0 ... addresses the logical unit;
		// attribute it to the parent interface.
		if len(rest) >= 2 && rest[0] == "unit" {
			rest = rest[2:]
		}
		idx := rec.UpsertInterface(name, classifyInterfaceName(name))
		cur := &rec.Interfaces[idx]
		cur.RawLines = append(cur.RawLines, "set interfaces "+strings.Join(fields[1:], " "))
		switch {
		case len(rest) >= 2 && rest[0] == "description":
			cur.Description = strings.Trim(strings.Join(rest[1:], " "), `"`)
		case len(rest) >= 4 && rest[0] == "family" && rest[1] == "inet" && rest[2] == "address":
			addr, mask := splitAddressMask(rest[3])
			cur.IPAddress = addr
			cur.SubnetMask = mask
		case len(rest) >= 1 && rest[0] == "disable":
			cur.Shutdown = true
			cur.Status = "down"
		}
		return lineOK, ""
	case "vlans":
		if len(fields) >= 4 && fields[2] == "vlan-id" {
			if id, err := strconv.Atoi(fields[3]); err == nil {
				rec.AddVLAN(id)
				return lineOK, ""
			}
			return lineError, "unparseable vlan-id: " + rest
		}
	case "protocols":
		if fields[1] == "bgp" {
			for i := 2; i < len(fields)-1; i++ {
				if fields[i] == "neighbor" {
					rec.AddBGPPeer(fields[i+1])
				}
				if fields[i] == "peer-as" {
					rec.AppendExtensionList("bgp_asns", fields[i+1])
				}
			}
		}
		rec.AppendExtensionList("routing_config", "set "+rest)
		return lineOK, ""
	case "firewall":
		if len(fields) >= 3 && fields[1] == "filter" {
			rec.AddACL(fields[2])
			return lineOK, ""
		}
	}
	return lineSkip, ""
}
