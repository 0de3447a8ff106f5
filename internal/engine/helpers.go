package engine

import (
	"regexp"
	"strconv"
	"strings"

	"netlens/internal/models"
)

var (
	ipv4Re = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	// Matches colon/dash separated MACs and Cisco dotted-quad triples.
	macRe = regexp.MustCompile(`\b(?:[0-9a-fA-F]{2}[:-]){5}[0-9a-fA-F]{2}\b|\b[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\.[0-9a-fA-F]{4}\b`)
	// Word-boundary-aware range delimiter; a bare substring split on the
	// letters t/o misparses tokens like "auto" or "motor".
	vlanToRe    = regexp.MustCompile(`(?i)^\s*(\d{1,4})\s+to\s+(\d{1,4})\s*$`)
	vlanDashRe  = regexp.MustCompile(`^\s*(\d{1,4})-(\d{1,4})\s*$`)
	neighborRe  = regexp.MustCompile(`(?i)^\s*Device ID:\s*(\S+)`)
	lldpNameRe  = regexp.MustCompile(`(?i)system name:\s*(\S+)`)
	cidrAddrRe  = regexp.MustCompile(`\b((?:\d{1,3}\.){3}\d{1,3})/(\d{1,2})\b`)
	percentRe   = regexp.MustCompile(`(\d{1,3}(?:\.\d+)?)\s*%`)
	versionWord = regexp.MustCompile(`(?i)\bversion\s+([\w.()-]+)`)
)

const maxVLANID = 4094

// discoveryWindow bounds how far apart (in characters) an IP and a MAC may
// appear on one line and still be treated as one address-resolution entry.
const discoveryWindow = 80

// expandVLANRange expands a single VLAN token into identifiers. Accepted
// forms: "100", "100 to 115", "100-115". Malformed or inverted ranges yield
// ok=false with no partial expansion.
func expandVLANRange(token string) ([]int, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, false
	}

	var lo, hi int
	if m := vlanToRe.FindStringSubmatch(token); m != nil {
		lo, _ = strconv.Atoi(m[1])
		hi, _ = strconv.Atoi(m[2])
	} else if m := vlanDashRe.FindStringSubmatch(token); m != nil {
		lo, _ = strconv.Atoi(m[1])
		hi, _ = strconv.Atoi(m[2])
	} else {
		id, err := strconv.Atoi(token)
		if err != nil || id < 1 || id > maxVLANID {
			return nil, false
		}
		return []int{id}, true
	}

	if lo < 1 || hi > maxVLANID || lo > hi {
		return nil, false
	}
	ids := make([]int, 0, hi-lo+1)
	for v := lo; v <= hi; v++ {
		ids = append(ids, v)
	}
	return ids, true
}

// parseVLANList expands a whitespace/comma separated VLAN list that may mix
// single identifiers with "a to b" and "a-b" range tokens. Malformed tokens
// are skipped, not fatal.
func parseVLANList(s string) []int {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})

	var out []int
	for i := 0; i < len(fields); i++ {
		// Rejoin "a to b" split across three fields.
		if i+2 < len(fields) && strings.EqualFold(fields[i+1], "to") {
			if ids, ok := expandVLANRange(fields[i] + " to " + fields[i+2]); ok {
				out = append(out, ids...)
				i += 2
				continue
			}
		}
		if ids, ok := expandVLANRange(fields[i]); ok {
			out = append(out, ids...)
		}
	}
	return out
}

// scanDiscovery applies the interface-independent discovery heuristics to one
// line: IP/MAC co-occurrence within a bounded window becomes an
// address-resolution entry, discovery-protocol neighbor mentions become
// neighbor entries, and every MAC seen is accumulated. When an interface
// context is open the discovered entry is tagged with it.
func scanDiscovery(st *parseState, line string) bool {
	found := false

	macs := macRe.FindAllStringIndex(line, -1)
	for _, m := range macs {
		st.rec.AddMACAddress(line[m[0]:m[1]])
	}

	ips := ipv4Re.FindAllStringIndex(line, -1)
	if len(ips) > 0 && len(macs) > 0 {
		ifName := ""
		if cur := st.current(); cur != nil {
			ifName = cur.Name
		}
		for _, ip := range ips {
			for _, m := range macs {
				dist := ip[0] - m[0]
				if dist < 0 {
					dist = -dist
				}
				if dist <= discoveryWindow {
					st.rec.ArpEntries = append(st.rec.ArpEntries, models.ArpEntry{
						IPAddress:  line[ip[0]:ip[1]],
						MACAddress: strings.ToLower(line[m[0]:m[1]]),
						Interface:  ifName,
					})
					found = true
				}
			}
		}
	}

	if m := neighborRe.FindStringSubmatch(line); m != nil {
		st.rec.Neighbors = append(st.rec.Neighbors, models.NeighborEntry{
			RemoteDevice: m[1],
			Protocol:     "cdp",
		})
		found = true
	}
	lower := strings.ToLower(line)
	if strings.Contains(lower, "lldp neighbor") || strings.Contains(lower, "system name:") {
		if m := lldpNameRe.FindStringSubmatch(line); m != nil {
			st.rec.Neighbors = append(st.rec.Neighbors, models.NeighborEntry{
				RemoteDevice: m[1],
				Protocol:     "lldp",
			})
			found = true
		}
	}
	return found
}

// signal is one weighted confidence cue matched against a text sample
type signal struct {
	re     *regexp.Regexp
	weight int
}

// scoreSignals sums the weights of matching signals, capped at 100
func scoreSignals(sample string, signals []signal) int {
	score := 0
	for _, s := range signals {
		if s.re.MatchString(sample) {
			score += s.weight
		}
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// splitAddressMask interprets "a.b.c.d e.f.g.h" and "a.b.c.d/nn" address
// forms, returning the address and dotted mask (mask may be empty)
func splitAddressMask(s string) (string, string) {
	s = strings.TrimSpace(s)
	if m := cidrAddrRe.FindStringSubmatch(s); m != nil {
		bits, _ := strconv.Atoi(m[2])
		return m[1], maskFromBits(bits)
	}
	fields := strings.Fields(s)
	if len(fields) >= 2 && ipv4Re.MatchString(fields[0]) && ipv4Re.MatchString(fields[1]) {
		return fields[0], fields[1]
	}
	if len(fields) >= 2 && ipv4Re.MatchString(fields[0]) {
		// Huawei allows a prefix length in place of a dotted mask.
		if bits, err := strconv.Atoi(fields[1]); err == nil && bits >= 0 && bits <= 32 {
			return fields[0], maskFromBits(bits)
		}
	}
	if len(fields) >= 1 && ipv4Re.MatchString(fields[0]) {
		return fields[0], ""
	}
	return "", ""
}

func maskFromBits(bits int) string {
	if bits < 0 || bits > 32 {
		return ""
	}
	mask := ^uint32(0) << (32 - bits)
	if bits == 0 {
		mask = 0
	}
	return strconv.Itoa(int(mask>>24)) + "." +
		strconv.Itoa(int(mask>>16&0xff)) + "." +
		strconv.Itoa(int(mask>>8&0xff)) + "." +
		strconv.Itoa(int(mask&0xff))
}

// firstPercent extracts the first percentage value on a line
func firstPercent(line string) (float64, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// classifyInterfaceName maps an interface name to its structural kind
func classifyInterfaceName(name string) models.InterfaceKind {
	lower := strings.ToLower(name)
	if strings.Contains(name, ".") {
		return models.InterfaceSubinterface
	}
	if strings.HasPrefix(lower, "port-channel") ||
		strings.HasPrefix(lower, "eth-trunk") ||
		strings.HasPrefix(lower, "ae") ||
		strings.HasPrefix(lower, "bundle") ||
		strings.HasPrefix(lower, "lag") {
		return models.InterfaceAggregate
	}
	return models.InterfacePhysical
}

// looksLikeManagement reports whether an interface name suggests the
// management plane
func looksLikeManagement(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "mgmt") ||
		strings.Contains(lower, "management") ||
		lower == "vlan1" || lower == "vlanif1" ||
		strings.HasPrefix(lower, "meth") ||
		strings.HasPrefix(lower, "fxp0") ||
		strings.HasPrefix(lower, "em0")
}
