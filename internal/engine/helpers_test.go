package engine

import (
	"reflect"
	"testing"

	"netlens/internal/models"
)

func TestExpandVLANRange(t *testing.T) {
	cases := []struct {
		token string
		want  []int
		ok    bool
	}{
		{"100", []int{100}, true},
		{"100 to 103", []int{100, 101, 102, 103}, true},
		{"100-103", []int{100, 101, 102, 103}, true},
		{" 200 TO 201 ", []int{200, 201}, true},
		{"103 to 100", nil, false}, // inverted
		{"0", nil, false},
		{"4095", nil, false},
		{"100 to 5000", nil, false},
		{"auto", nil, false}, // must not split on the letters t/o
		{"", nil, false},
		{"abc to def", nil, false},
	}

	for _, tc := range cases {
		got, ok := expandVLANRange(tc.token)
		if ok != tc.ok {
			t.Errorf("expandVLANRange(%q): ok=%v, want %v", tc.token, ok, tc.ok)
			continue
		}
		if tc.ok && !reflect.DeepEqual(got, tc.want) {
			t.Errorf("expandVLANRange(%q) = %v, want %v", tc.token, got, tc.want)
		}
	}
}

func TestParseVLANList(t *testing.T) {
	cases := []struct {
		spec string
		want []int
	}{
		{"10,20,30", []int{10, 20, 30}},
		{"10 20 30", []int{10, 20, 30}},
		{"100 to 102", []int{100, 101, 102}},
		{"10, 100 to 102, 200", []int{10, 100, 101, 102, 200}},
		{"10-12 99", []int{10, 11, 12, 99}},
		{"10 bogus 20", []int{10, 20}}, // malformed tokens skipped, not fatal
		{"garbage", nil},
	}

	for _, tc := range cases {
		got := parseVLANList(tc.spec)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("parseVLANList(%q) = %v, want %v", tc.spec, got, tc.want)
		}
	}
}

func TestSplitAddressMask(t *testing.T) {
	cases := []struct {
		in   string
		addr string
		mask string
	}{
		{"10.0.0.1 255.255.255.0", "10.0.0.1", "255.255.255.0"},
		{"10.0.0.1/24", "10.0.0.1", "255.255.255.0"},
		{"192.168.1.1 24", "192.168.1.1", "255.255.255.0"},
		{"172.16.0.1", "172.16.0.1", ""},
		{"dhcp", "", ""},
	}

	for _, tc := range cases {
		addr, mask := splitAddressMask(tc.in)
		if addr != tc.addr || mask != tc.mask {
			t.Errorf("splitAddressMask(%q) = (%q, %q), want (%q, %q)", tc.in, addr, mask, tc.addr, tc.mask)
		}
	}
}

func TestMaskFromBits(t *testing.T) {
	cases := []struct {
		bits int
		want string
	}{
		{0, "0.0.0.0"},
		{8, "255.0.0.0"},
		{24, "255.255.255.0"},
		{30, "255.255.255.252"},
		{32, "255.255.255.255"},
		{33, ""},
	}
	for _, tc := range cases {
		if got := maskFromBits(tc.bits); got != tc.want {
			t.Errorf("maskFromBits(%d) = %q, want %q", tc.bits, got, tc.want)
		}
	}
}

func TestClassifyInterfaceName(t *testing.T) {
	cases := []struct {
		name string
		want models.InterfaceKind
	}{
		{"GigabitEthernet0/1", models.InterfacePhysical},
		{"GigabitEthernet0/1.100", models.InterfaceSubinterface},
		{"Port-channel1", models.InterfaceAggregate},
		{"Eth-Trunk10", models.InterfaceAggregate},
		{"ae0", models.InterfaceAggregate},
		{"ge-0/0/0", models.InterfacePhysical},
	}
	for _, tc := range cases {
		if got := classifyInterfaceName(tc.name); got != tc.want {
			t.Errorf("classifyInterfaceName(%q) = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestScanDiscoveryArpWindow(t *testing.T) {
	rec := models.NewDeviceRecord("arp.txt")
	st := newParseState(rec)

	if !scanDiscovery(st, "Internet  10.1.1.5   12   aabb.cc00.1122  ARPA  Vlan10") {
		t.Fatal("expected ARP co-occurrence to be discovered")
	}
	if len(rec.ArpEntries) != 1 {
		t.Fatalf("expected 1 ARP entry, got %d", len(rec.ArpEntries))
	}
	e := rec.ArpEntries[0]
	if e.IPAddress != "10.1.1.5" || e.MACAddress != "aabb.cc00.1122" {
		t.Errorf("unexpected ARP entry: %+v", e)
	}
	if len(rec.MACAddresses) != 1 {
		t.Errorf("expected MAC accumulated, got %v", rec.MACAddresses)
	}
}

func TestScanDiscoveryNeighbors(t *testing.T) {
	rec := models.NewDeviceRecord("cdp.txt")
	st := newParseState(rec)

	scanDiscovery(st, "Device ID: DIST-SW2.example.net")
	scanDiscovery(st, "System Name: ACCESS-SW9")

	if len(rec.Neighbors) != 2 {
		t.Fatalf("expected 2 neighbors, got %d", len(rec.Neighbors))
	}
	if rec.Neighbors[0].Protocol != "cdp" || rec.Neighbors[0].RemoteDevice != "DIST-SW2.example.net" {
		t.Errorf("unexpected CDP neighbor: %+v", rec.Neighbors[0])
	}
	if rec.Neighbors[1].Protocol != "lldp" || rec.Neighbors[1].RemoteDevice != "ACCESS-SW9" {
		t.Errorf("unexpected LLDP neighbor: %+v", rec.Neighbors[1])
	}
}
