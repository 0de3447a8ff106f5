package engine

import (
	"context"
	"testing"

	"netlens/internal/models"
)

const syslogSample = `Jan 15 03:22:01 core-sw1 %LINK-3-UPDOWN: Interface GigabitEthernet0/1, changed state to down
Jan 15 03:22:05 core-sw1 %LINEPROTO-5-UPDOWN: Line protocol on Interface GigabitEthernet0/1, changed state to down
Jan 15 03:25:41 core-sw1 %SYS-5-CONFIG_I: Configured from console by netops on vty0 (192.168.10.9)
`

func TestGenericAlwaysClaims(t *testing.T) {
	e := NewGenericEngine()
	if !e.CanParse("") || !e.CanParse("complete nonsense") {
		t.Error("generic engine must claim every input")
	}
}

func TestGenericScoreStaysLow(t *testing.T) {
	e := NewGenericEngine()
	// The generic baseline must lose to a vendor engine with real keyword
	// matches on that vendor's own sample.
	cisco := NewCiscoEngine()
	if e.ConfidenceScore(ciscoSample) >= cisco.ConfidenceScore(ciscoSample) {
		t.Errorf("generic score %d should not outrank cisco score %d on an IOS sample",
			e.ConfidenceScore(ciscoSample), cisco.ConfidenceScore(ciscoSample))
	}
}

func TestGenericParseSyslog(t *testing.T) {
	e := NewGenericEngine()
	path := writeTestFile(t, "messages.log", syslogSample)

	rec, err := e.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if rec.Vendor != models.VendorGeneric {
		t.Errorf("expected generic vendor, got %q", rec.Vendor)
	}
	// The relay hostname is the second field of RFC3164 lines.
	if rec.SystemName != "core-sw1" {
		t.Errorf("expected relay hostname extracted, got %q", rec.SystemName)
	}
	if rec.FindInterface("GigabitEthernet0/1") < 0 {
		t.Errorf("expected interface mention extracted, got %+v", rec.Interfaces)
	}
}

func TestGenericParseKeyValueDump(t *testing.T) {
	input := `hostname: appliance-7
serial number: XZ-991122
software: 4.2.1
ntp server: 10.9.9.9
username: operator
`
	e := NewGenericEngine()
	path := writeTestFile(t, "dump.txt", input)

	rec, err := e.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if rec.DeviceName != "appliance-7" {
		t.Errorf("unexpected device name: %q", rec.DeviceName)
	}
	if rec.SerialNumber != "XZ-991122" {
		t.Errorf("unexpected serial: %q", rec.SerialNumber)
	}
	if rec.SoftwareVersion != "4.2.1" {
		t.Errorf("unexpected version: %q", rec.SoftwareVersion)
	}
	if len(rec.NTPServers) != 1 || rec.NTPServers[0] != "10.9.9.9" {
		t.Errorf("unexpected NTP servers: %v", rec.NTPServers)
	}
	if len(rec.Users) != 1 || rec.Users[0] != "operator" {
		t.Errorf("unexpected users: %v", rec.Users)
	}
}

func TestGenericIdentityFallsBackToFileName(t *testing.T) {
	e := NewGenericEngine()
	path := writeTestFile(t, "mystery-device.txt", "nothing recognizable here\n")

	rec, err := e.Parse(context.Background(), path)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if rec.DeviceName != "mystery-device" {
		t.Errorf("expected file-name fallback identity, got %q", rec.DeviceName)
	}
}
