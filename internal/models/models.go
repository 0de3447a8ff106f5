// Package models defines the data structures used throughout the netlens analyzer.
// Its central type is DeviceRecord, the vendor-neutral result of extracting one
// device log or configuration file, together with the interface, finding, and
// discovery-table types that hang off it.
package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// VendorID identifies an extraction engine implementation
type VendorID string

const (
	VendorCisco    VendorID = "cisco"
	VendorHuawei   VendorID = "huawei"
	VendorJuniper  VendorID = "juniper"
	VendorFortinet VendorID = "fortinet"
	VendorGeneric  VendorID = "generic"
)

// Severity ranks how serious a finding is
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// FindingCategory groups findings by the concern they relate to
type FindingCategory string

const (
	CategorySecurity      FindingCategory = "Security"
	CategoryPerformance   FindingCategory = "Performance"
	CategoryConfiguration FindingCategory = "Configuration"
	CategorySearch        FindingCategory = "Search"
)

// Finding represents one anomaly detected in a device record
type Finding struct {
	Category       FindingCategory `json:"category"`
	Subcategory    string          `json:"subcategory"`
	Description    string          `json:"description"`
	Severity       Severity        `json:"severity"`
	Remediation    string          `json:"remediation,omitempty"`
	VendorSpecific bool            `json:"vendorSpecific,omitempty"`
}

// InterfaceKind classifies an interface by its construction
type InterfaceKind string

const (
	InterfacePhysical     InterfaceKind = "physical"
	InterfaceSubinterface InterfaceKind = "subinterface"
	InterfaceAggregate    InterfaceKind = "aggregate"
)

// InterfaceCounters holds optional traffic and error counters for an interface
type InterfaceCounters struct {
	UtilizationIn  float64 `json:"utilizationIn"`
	UtilizationOut float64 `json:"utilizationOut"`
	ErrorsIn       int64   `json:"errorsIn"`
	ErrorsOut      int64   `json:"errorsOut"`
	PacketsIn      int64   `json:"packetsIn"`
	PacketsOut     int64   `json:"packetsOut"`
}

// Interface represents one network interface extracted from a device file
type Interface struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	IPAddress   string             `json:"ipAddress,omitempty"`
	SubnetMask  string             `json:"subnetMask,omitempty"`
	Shutdown    bool               `json:"shutdown"`
	Status      string             `json:"status"` // derived: up or down
	Kind        InterfaceKind      `json:"kind"`
	VLANs       []int              `json:"vlans,omitempty"`
	RawLines    []string           `json:"rawLines,omitempty"`
	Counters    *InterfaceCounters `json:"counters,omitempty"`
}

// ArpEntry is one address-resolution table row
type ArpEntry struct {
	IPAddress  string `json:"ipAddress"`
	MACAddress string `json:"macAddress"`
	Interface  string `json:"interface,omitempty"`
}

// LeaseEntry is one DHCP lease table row
type LeaseEntry struct {
	IPAddress  string `json:"ipAddress"`
	MACAddress string `json:"macAddress"`
	Hostname   string `json:"hostname,omitempty"`
}

// NeighborEntry is one discovery-protocol (CDP/LLDP) neighbor row
type NeighborEntry struct {
	LocalInterface  string `json:"localInterface,omitempty"`
	RemoteDevice    string `json:"remoteDevice"`
	RemoteInterface string `json:"remoteInterface,omitempty"`
	Protocol        string `json:"protocol,omitempty"`
}

// ExtensionKind tags which variant field of an ExtensionValue is populated
type ExtensionKind string

const (
	ExtensionString   ExtensionKind = "string"
	ExtensionList     ExtensionKind = "list"
	ExtensionLicenses ExtensionKind = "licenses"
	ExtensionModules  ExtensionKind = "modules"
	ExtensionPorts    ExtensionKind = "ports"
)

// License describes one installed license entry
type License struct {
	Name   string `json:"name"`
	State  string `json:"state,omitempty"`
	Expiry string `json:"expiry,omitempty"`
}

// ModuleInfo describes one hardware module or line card
type ModuleInfo struct {
	Slot   string `json:"slot"`
	Type   string `json:"type,omitempty"`
	Serial string `json:"serial,omitempty"`
	Status string `json:"status,omitempty"`
}

// PortInfo describes one physical port status row
type PortInfo struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
	Speed  string `json:"speed,omitempty"`
	Duplex string `json:"duplex,omitempty"`
}

// ExtensionValue is a tagged variant for vendor-specific record fields that
// have no universal equivalent. Exactly one payload field is meaningful,
// selected by Kind.
type ExtensionValue struct {
	Kind     ExtensionKind `json:"kind"`
	Str      string        `json:"str,omitempty"`
	List     []string      `json:"list,omitempty"`
	Licenses []License     `json:"licenses,omitempty"`
	Modules  []ModuleInfo  `json:"modules,omitempty"`
	Ports    []PortInfo    `json:"ports,omitempty"`
}

// StringExtension builds a string-valued extension
func StringExtension(s string) ExtensionValue {
	return ExtensionValue{Kind: ExtensionString, Str: s}
}

// ListExtension builds a list-valued extension
func ListExtension(items ...string) ExtensionValue {
	return ExtensionValue{Kind: ExtensionList, List: items}
}

// Strings flattens the extension payload into searchable text values
func (v ExtensionValue) Strings() []string {
	switch v.Kind {
	case ExtensionString:
		return []string{v.Str}
	case ExtensionList:
		return v.List
	case ExtensionLicenses:
		out := make([]string, 0, len(v.Licenses))
		for _, l := range v.Licenses {
			out = append(out, strings.TrimSpace(l.Name+" "+l.State+" "+l.Expiry))
		}
		return out
	case ExtensionModules:
		out := make([]string, 0, len(v.Modules))
		for _, m := range v.Modules {
			out = append(out, strings.TrimSpace(m.Slot+" "+m.Type+" "+m.Serial+" "+m.Status))
		}
		return out
	case ExtensionPorts:
		out := make([]string, 0, len(v.Ports))
		for _, p := range v.Ports {
			out = append(out, strings.TrimSpace(p.Name+" "+p.Status+" "+p.Speed+" "+p.Duplex))
		}
		return out
	}
	return nil
}

// DeviceRecord is the canonical structured result of parsing one input file.
// List-valued fields whose order is irrelevant (VLANs, ACLs, users, NTP
// servers, peers) are maintained as deduplicated sets by the Add helpers.
type DeviceRecord struct {
	ID       int64  `json:"id,omitempty"`
	FileName string `json:"fileName"`

	DeviceName      string   `json:"deviceName"`
	SystemName      string   `json:"systemName,omitempty"`
	SoftwareVersion string   `json:"softwareVersion,omitempty"`
	SerialNumber    string   `json:"serialNumber,omitempty"`
	Model           string   `json:"model,omitempty"`
	ManagementIP    string   `json:"managementIp,omitempty"`
	Vendor          VendorID `json:"vendor"`

	VLANs      []int       `json:"vlans,omitempty"`
	ACLs       []string    `json:"acls,omitempty"`
	Interfaces []Interface `json:"interfaces,omitempty"`
	BGPPeers   []string    `json:"bgpPeers,omitempty"`
	Users      []string    `json:"users,omitempty"`
	NTPServers []string    `json:"ntpServers,omitempty"`

	CPUUsage    float64  `json:"cpuUsage,omitempty"`
	MemoryUsage float64  `json:"memoryUsage,omitempty"`
	DiskUsage   float64  `json:"diskUsage,omitempty"`
	Temperature float64  `json:"temperature,omitempty"`
	Alarms      []string `json:"alarms,omitempty"`

	ArpEntries   []ArpEntry      `json:"arpEntries,omitempty"`
	DHCPLeases   []LeaseEntry    `json:"dhcpLeases,omitempty"`
	Neighbors    []NeighborEntry `json:"neighbors,omitempty"`
	MACAddresses []string        `json:"macAddresses,omitempty"`

	Findings    []Finding `json:"findings,omitempty"`
	HealthScore int       `json:"healthScore"`

	ParseErrors []string `json:"parseErrors,omitempty"`
	ParsedLines int      `json:"parsedLines"`
	TotalLines  int      `json:"totalLines"`

	Extensions map[string]ExtensionValue `json:"extensions,omitempty"`

	AnalyzedAt time.Time `json:"analyzedAt,omitempty"`
}

// NewDeviceRecord creates an empty record for the given source file
func NewDeviceRecord(fileName string) *DeviceRecord {
	return &DeviceRecord{
		FileName:    fileName,
		HealthScore: 100,
		Extensions:  make(map[string]ExtensionValue),
	}
}

// Identity returns the best available device identity: device name, then
// system name, then the empty string
func (r *DeviceRecord) Identity() string {
	if r.DeviceName != "" {
		return r.DeviceName
	}
	return r.SystemName
}

// FindInterface returns the index of the interface with the given name under
// case-insensitive comparison, or -1 when absent
func (r *DeviceRecord) FindInterface(name string) int {
	for i := range r.Interfaces {
		if strings.EqualFold(r.Interfaces[i].Name, name) {
			return i
		}
	}
	return -1
}

// UpsertInterface returns the index of the interface with the given name,
// creating it when absent. Duplicate headers for the same name therefore
// update the existing entry rather than appending a second one.
func (r *DeviceRecord) UpsertInterface(name string, kind InterfaceKind) int {
	if i := r.FindInterface(name); i >= 0 {
		return i
	}
	r.Interfaces = append(r.Interfaces, Interface{
		Name:   name,
		Kind:   kind,
		Status: "up",
	})
	return len(r.Interfaces) - 1
}

// AddVLAN inserts a VLAN identifier, ignoring duplicates
func (r *DeviceRecord) AddVLAN(id int) {
	for _, v := range r.VLANs {
		if v == id {
			return
		}
	}
	r.VLANs = append(r.VLANs, id)
}

// AddACL inserts an ACL identifier, ignoring case-insensitive duplicates
func (r *DeviceRecord) AddACL(name string) {
	for _, a := range r.ACLs {
		if strings.EqualFold(a, name) {
			return
		}
	}
	r.ACLs = append(r.ACLs, name)
}

// AddUser inserts a local user name, ignoring case-insensitive duplicates
func (r *DeviceRecord) AddUser(name string) {
	for _, u := range r.Users {
		if strings.EqualFold(u, name) {
			return
		}
	}
	r.Users = append(r.Users, name)
}

// AddNTPServer inserts an NTP server reference, ignoring duplicates
func (r *DeviceRecord) AddNTPServer(server string) {
	for _, s := range r.NTPServers {
		if s == server {
			return
		}
	}
	r.NTPServers = append(r.NTPServers, server)
}

// AddBGPPeer inserts a BGP peer identifier, ignoring duplicates
func (r *DeviceRecord) AddBGPPeer(peer string) {
	for _, p := range r.BGPPeers {
		if p == peer {
			return
		}
	}
	r.BGPPeers = append(r.BGPPeers, peer)
}

// AddMACAddress inserts a MAC address, normalized to lower case, ignoring
// duplicates
func (r *DeviceRecord) AddMACAddress(mac string) {
	mac = strings.ToLower(mac)
	for _, m := range r.MACAddresses {
		if m == mac {
			return
		}
	}
	r.MACAddresses = append(r.MACAddresses, mac)
}

// AppendExtensionList appends values to a list-kind extension, creating it on
// first use
func (r *DeviceRecord) AppendExtensionList(key string, values ...string) {
	if r.Extensions == nil {
		r.Extensions = make(map[string]ExtensionValue)
	}
	ext, ok := r.Extensions[key]
	if !ok || ext.Kind != ExtensionList {
		ext = ExtensionValue{Kind: ExtensionList}
	}
	ext.List = append(ext.List, values...)
	r.Extensions[key] = ext
}

// SetExtension stores an extension value under the given key
func (r *DeviceRecord) SetExtension(key string, v ExtensionValue) {
	if r.Extensions == nil {
		r.Extensions = make(map[string]ExtensionValue)
	}
	r.Extensions[key] = v
}

// ExtensionKeys returns the extension map's keys in sorted order so callers
// that walk the map produce stable output
func (r *DeviceRecord) ExtensionKeys() []string {
	keys := make([]string, 0, len(r.Extensions))
	for k := range r.Extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RecordParseError appends a line-level parse error with its 1-based line number
func (r *DeviceRecord) RecordParseError(lineNum int, msg string) {
	r.ParseErrors = append(r.ParseErrors, "line "+strconv.Itoa(lineNum)+": "+msg)
}
