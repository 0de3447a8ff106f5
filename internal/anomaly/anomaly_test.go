package anomaly

import (
	"reflect"
	"strings"
	"testing"

	"netlens/internal/config"
	"netlens/internal/models"
)

func countFindings(findings []models.Finding, cat models.FindingCategory, sub string) int {
	n := 0
	for _, f := range findings {
		if f.Category == cat && (sub == "" || f.Subcategory == sub) {
			n++
		}
	}
	return n
}

func TestComputeHealthScore(t *testing.T) {
	cases := []struct {
		name     string
		findings []models.Finding
		want     int
	}{
		{"no findings", nil, 100},
		{"one critical", []models.Finding{{Severity: models.SeverityCritical}}, 75},
		{"one high", []models.Finding{{Severity: models.SeverityHigh}}, 85},
		{"one medium", []models.Finding{{Severity: models.SeverityMedium}}, 92},
		{"one low", []models.Finding{{Severity: models.SeverityLow}}, 97},
		{"unknown severity", []models.Finding{{Severity: "Weird"}}, 99},
		{
			"clamped at zero",
			[]models.Finding{
				{Severity: models.SeverityCritical},
				{Severity: models.SeverityCritical},
				{Severity: models.SeverityCritical},
				{Severity: models.SeverityCritical},
				{Severity: models.SeverityCritical},
			},
			0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ComputeHealthScore(tc.findings); got != tc.want {
				t.Errorf("ComputeHealthScore = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestEvaluateMissingACL(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	rec.SystemName = "X"
	idx := rec.UpsertInterface("GigabitEthernet0/1", models.InterfacePhysical)
	rec.Interfaces[idx].IPAddress = "10.0.0.1"

	Evaluate(rec)

	if countFindings(rec.Findings, models.CategorySecurity, "access-control") != 1 {
		t.Errorf("expected a missing-ACL finding, got %+v", rec.Findings)
	}
	if rec.HealthScore >= 100 {
		t.Errorf("expected health penalty, got %d", rec.HealthScore)
	}

	// With an ACL present the finding disappears.
	rec.AddACL("EDGE-IN")
	Evaluate(rec)
	if countFindings(rec.Findings, models.CategorySecurity, "access-control") != 0 {
		t.Error("ACL presence should suppress the missing-ACL finding")
	}
}

func TestEvaluateSkipsNonRoutableAddresses(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	idx := rec.UpsertInterface("Loopback0", models.InterfacePhysical)
	rec.Interfaces[idx].IPAddress = "127.0.0.1"

	Evaluate(rec)
	if countFindings(rec.Findings, models.CategorySecurity, "access-control") != 0 {
		t.Error("loopback addresses must not trigger the missing-ACL rule")
	}
}

func TestEvaluateWeakUsers(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	rec.AddUser("superadmin")
	rec.AddUser("jsmith")

	Evaluate(rec)
	if countFindings(rec.Findings, models.CategorySecurity, "credentials") != 1 {
		t.Errorf("expected exactly one weak-credential finding, got %+v", rec.Findings)
	}
}

func TestEvaluateVendorDefaultAccount(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	rec.Vendor = models.VendorCisco
	rec.AddUser("cisco")

	Evaluate(rec)

	found := false
	for _, f := range rec.Findings {
		if f.Severity == models.SeverityCritical && f.VendorSpecific {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a critical vendor-specific default-account finding, got %+v", rec.Findings)
	}
}

func TestEvaluateRoutingRules(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	rec.AddBGPPeer("10.0.0.2")
	rec.AppendExtensionList("bgp_asns", "65001", "3356")
	rec.AppendExtensionList("routing_config", "router bgp 65001", "neighbor 10.0.0.2 remote-as 3356")

	Evaluate(rec)

	if countFindings(rec.Findings, models.CategorySecurity, "routing") < 3 {
		// no ACLs, no auth marker, no route filters, plus reserved ASN
		t.Errorf("expected routing findings for unprotected peering, got %+v", rec.Findings)
	}

	reserved := 0
	for _, f := range rec.Findings {
		if strings.Contains(f.Description, "65001") {
			reserved++
		}
	}
	if reserved != 1 {
		t.Errorf("expected one reserved-ASN finding for 65001, got %d", reserved)
	}

	// Authentication and filtering markers suppress the corresponding rules.
	rec2 := models.NewDeviceRecord("y.cfg")
	rec2.AddBGPPeer("10.0.0.2")
	rec2.AddACL("PEER-IN")
	rec2.AppendExtensionList("routing_config",
		"neighbor 10.0.0.2 password s3cret",
		"neighbor 10.0.0.2 prefix-list PEERS in")
	Evaluate(rec2)
	if n := countFindings(rec2.Findings, models.CategorySecurity, "routing"); n != 0 {
		t.Errorf("expected no routing findings with auth and filters present, got %d: %+v", n, rec2.Findings)
	}
}

func TestEvaluateManagementExposure(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	rec.ManagementIP = "203.0.113.5"
	Evaluate(rec)
	if countFindings(rec.Findings, models.CategorySecurity, "management") != 1 {
		t.Errorf("expected exposed-management finding, got %+v", rec.Findings)
	}

	rec.ManagementIP = "192.168.1.5"
	Evaluate(rec)
	if countFindings(rec.Findings, models.CategorySecurity, "management") != 0 {
		t.Error("private management address must not be flagged")
	}
}

func TestEvaluateInsecureServices(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	idx := rec.UpsertInterface("Vlan1", models.InterfacePhysical)
	rec.Interfaces[idx].RawLines = []string{"transport input telnet ssh"}

	Evaluate(rec)
	if countFindings(rec.Findings, models.CategorySecurity, "insecure-service") != 1 {
		t.Errorf("expected insecure-service finding for telnet, got %+v", rec.Findings)
	}
}

func TestEvaluatePerformanceThresholds(t *testing.T) {
	t.Run("gauges", func(t *testing.T) {
		rec := models.NewDeviceRecord("x.cfg")
		rec.CPUUsage = 85
		rec.MemoryUsage = 97
		rec.DiskUsage = 50
		Evaluate(rec)

		var cpuSev, memSev models.Severity
		for _, f := range rec.Findings {
			if f.Subcategory != "resources" {
				continue
			}
			if strings.HasPrefix(f.Description, "CPU") {
				cpuSev = f.Severity
			}
			if strings.HasPrefix(f.Description, "Memory") {
				memSev = f.Severity
			}
			if strings.HasPrefix(f.Description, "Disk") {
				t.Error("disk at 50% must not be flagged")
			}
		}
		if cpuSev != models.SeverityHigh {
			t.Errorf("CPU at 85%% should be High, got %q", cpuSev)
		}
		if memSev != models.SeverityCritical {
			t.Errorf("Memory at 97%% should escalate to Critical, got %q", memSev)
		}
	})

	t.Run("boundary is strict", func(t *testing.T) {
		rec := models.NewDeviceRecord("x.cfg")
		rec.CPUUsage = 80 // exactly at the threshold
		Evaluate(rec)
		if countFindings(rec.Findings, models.CategoryPerformance, "resources") != 0 {
			t.Error("a gauge exactly at its threshold must not be flagged")
		}
	})

	t.Run("interface errors", func(t *testing.T) {
		rec := models.NewDeviceRecord("x.cfg")
		idx := rec.UpsertInterface("Gi0/1", models.InterfacePhysical)
		rec.Interfaces[idx].Counters = &models.InterfaceCounters{ErrorsIn: 900, ErrorsOut: 200}
		Evaluate(rec)

		for _, f := range rec.Findings {
			if f.Subcategory == "errors" {
				if f.Severity != models.SeverityHigh {
					t.Errorf("1100 combined errors should be High, got %q", f.Severity)
				}
				return
			}
		}
		t.Error("expected an interface-errors finding")
	})

	t.Run("utilization", func(t *testing.T) {
		rec := models.NewDeviceRecord("x.cfg")
		idx := rec.UpsertInterface("Gi0/1", models.InterfacePhysical)
		rec.Interfaces[idx].Counters = &models.InterfaceCounters{UtilizationIn: 75, UtilizationOut: 40}
		Evaluate(rec)

		if countFindings(rec.Findings, models.CategoryPerformance, "utilization") != 1 {
			t.Errorf("expected a utilization finding at 75%%, got %+v", rec.Findings)
		}
	})
}

func TestEvaluateConfigurationRules(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	Evaluate(rec)

	if countFindings(rec.Findings, models.CategoryConfiguration, "time-sync") != 1 {
		t.Error("expected missing-NTP finding")
	}
	if countFindings(rec.Findings, models.CategoryConfiguration, "accounts") != 1 {
		t.Error("expected no-accounts finding")
	}

	rec.AddNTPServer("10.0.0.9")
	rec.AddUser("jsmith")
	rec.RecordParseError(3, "bad token")
	Evaluate(rec)

	if countFindings(rec.Findings, models.CategoryConfiguration, "time-sync") != 0 {
		t.Error("NTP presence should suppress the time-sync finding")
	}
	if countFindings(rec.Findings, models.CategoryConfiguration, "parse-errors") != 1 {
		t.Error("expected parse-errors finding")
	}
}

func TestEvaluateShutInterfaceRatio(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	rec.AddNTPServer("10.0.0.9")
	rec.AddUser("jsmith")
	for i := 0; i < 12; i++ {
		idx := rec.UpsertInterface("Gi0/"+string(rune('a'+i)), models.InterfacePhysical)
		if i >= 2 {
			rec.Interfaces[idx].Shutdown = true
		}
	}
	Evaluate(rec)
	if countFindings(rec.Findings, models.CategoryConfiguration, "interfaces") != 1 {
		t.Errorf("expected shut-ratio finding with 2/12 active, got %+v", rec.Findings)
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	rec.AddUser("admin")

	Evaluate(rec)
	first := len(rec.Findings)
	Evaluate(rec)
	Evaluate(rec)
	if len(rec.Findings) != first {
		t.Errorf("repeated evaluation must not accumulate findings: %d then %d", first, len(rec.Findings))
	}
}

func TestSearchLiteral(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	idx := rec.UpsertInterface("Gi0/1", models.InterfacePhysical)
	rec.Interfaces[idx].RawLines = []string{"switchport access vlan 20", "SPANNING-TREE portfast"}
	before := rec.HealthScore

	err := Search(rec, []string{"spanning-tree"}, false, models.SeverityLow)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if countFindings(rec.Findings, models.CategorySearch, "pattern") != 1 {
		t.Errorf("expected one case-insensitive literal match, got %+v", rec.Findings)
	}
	if rec.HealthScore >= before {
		t.Errorf("health score not recomputed: %d", rec.HealthScore)
	}
}

func TestSearchRegex(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	idx := rec.UpsertInterface("Gi0/1", models.InterfacePhysical)
	rec.Interfaces[idx].RawLines = []string{"ip address 10.0.0.1 255.255.255.0"}
	rec.AppendExtensionList("routing_config", "neighbor 10.9.9.9 remote-as 65001")

	err := Search(rec, []string{`\b10\.\d+\.\d+\.\d+\b`}, true, models.SeverityMedium)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if n := countFindings(rec.Findings, models.CategorySearch, "pattern"); n != 2 {
		t.Errorf("expected matches in raw lines and extensions, got %d", n)
	}

	if err := Search(rec, []string{"("}, true, models.SeverityLow); err == nil {
		t.Error("expected error for invalid regex pattern")
	}
}

func TestSearchTruncatesLongMatches(t *testing.T) {
	rec := models.NewDeviceRecord("x.cfg")
	idx := rec.UpsertInterface("Gi0/1", models.InterfacePhysical)
	long := "description " + strings.Repeat("x", 200)
	rec.Interfaces[idx].RawLines = []string{long}

	if err := Search(rec, []string{"description"}, false, models.SeverityLow); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(rec.Findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(rec.Findings))
	}
	// The echoed match is bounded even though the source line is not.
	if len(rec.Findings[0].Description) > maxMatchLen+len(`Pattern "description" matched in interface Gi0/1: `) {
		t.Errorf("match echo not truncated: %d chars", len(rec.Findings[0].Description))
	}
}

func TestThresholdsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Anomaly.CPUHighPercent = 60
	cfg.Anomaly.CPUCriticalPercent = 85
	cfg.Anomaly.ErrorsHigh = 10

	tr := ThresholdsFromConfig(cfg)
	if tr.CPUHigh != 60 || tr.CPUCritical != 85 || tr.ErrorsHigh != 10 {
		t.Errorf("configured limits not applied: %+v", tr)
	}

	// Unset values keep the standard limits.
	def := DefaultThresholds()
	if tr.MemoryHigh != def.MemoryHigh || tr.DiskCritical != def.DiskCritical ||
		tr.UtilizationCrit != def.UtilizationCrit {
		t.Errorf("unset limits must fall back to the defaults: %+v", tr)
	}
}

func TestWeakCipherFindingDeterministic(t *testing.T) {
	// Two extension values both reference weak ciphers; the emitted finding
	// must not depend on map iteration order.
	build := func() *models.DeviceRecord {
		rec := models.NewDeviceRecord("x.cfg")
		rec.SetExtension("vpn_config", models.StringExtension("encryption 3des"))
		rec.SetExtension("mgmt_config", models.StringExtension("ssh cipher rc4"))
		return rec
	}

	first := build()
	Evaluate(first)
	var want string
	for _, f := range first.Findings {
		if f.Subcategory == "cryptography" {
			want = f.Description
		}
	}
	if !strings.Contains(want, "mgmt_config") {
		t.Fatalf("expected the first key in sorted order to match, got %q", want)
	}

	for trial := 0; trial < 20; trial++ {
		rec := build()
		Evaluate(rec)
		var got string
		for _, f := range rec.Findings {
			if f.Subcategory == "cryptography" {
				got = f.Description
			}
		}
		if got != want {
			t.Fatalf("trial %d: cipher finding differs: %q vs %q", trial, got, want)
		}
	}
}

func TestSearchExtensionOrderStable(t *testing.T) {
	build := func() *models.DeviceRecord {
		rec := models.NewDeviceRecord("x.cfg")
		rec.SetExtension("zz_block", models.StringExtension("telnet enable"))
		rec.SetExtension("aa_block", models.StringExtension("telnet enable"))
		rec.SetExtension("mm_block", models.StringExtension("telnet enable"))
		return rec
	}

	descriptions := func(rec *models.DeviceRecord) []string {
		var out []string
		for _, f := range rec.Findings {
			if f.Category == models.CategorySearch {
				out = append(out, f.Description)
			}
		}
		return out
	}

	first := build()
	if err := Search(first, []string{"telnet"}, false, models.SeverityLow); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	want := descriptions(first)
	if len(want) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(want))
	}

	for trial := 0; trial < 20; trial++ {
		rec := build()
		if err := Search(rec, []string{"telnet"}, false, models.SeverityLow); err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if got := descriptions(rec); !reflect.DeepEqual(got, want) {
			t.Fatalf("trial %d: match order differs: %v vs %v", trial, got, want)
		}
	}
}
