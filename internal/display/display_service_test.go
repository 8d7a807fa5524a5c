package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"backup-expiry/internal/backup"
)

func newTestDisplay(format string) (DisplayService, *bytes.Buffer) {
	var buf bytes.Buffer
	config := DefaultDisplayConfig()
	config.ColorEnabled = false
	config.UseIcons = false
	config.OutputFormat = format
	config.Writer = &buf
	return NewDisplayService(config), &buf
}

func TestDisplayService_PrintReport(t *testing.T) {
	ds, buf := newTestDisplay("table")
	ds.PrintReport(sampleReport(t))
	output := buf.String()

	for _, want := range []string{
		"app/dsmr",
		"day=7 month=2 year=1",
		"[OK] ok",
		"- expiry disabled",
		"image",
		"[ERROR] Directory 'local:/backup/other/zigbee' does not exist",
		"[WARNING] 2 artifact(s) deleted in 2s with 1 error(s)",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q, got:\n%s", want, output)
		}
	}
}

func TestDisplayService_PrintReportDryRun(t *testing.T) {
	ds, buf := newTestDisplay("table")
	report := backup.NewRunReport("run-2", time.Now())
	report.DryRun = true
	report.AddEntity(&backup.EntityResult{Store: "local", Class: backup.EntityClassApp, Entity: "dsmr", Expired: 2})
	report.Finish(report.StartedAt)

	ds.PrintReport(report)
	output := buf.String()

	if !strings.Contains(output, "would delete") {
		t.Errorf("Dry run should show pending deletions:\n%s", output)
	}
	if !strings.Contains(output, "[SUCCESS] [DRY] dry run, nothing deleted") {
		t.Errorf("Dry run summary missing:\n%s", output)
	}
}

func TestDisplayService_VerboseListsDeletions(t *testing.T) {
	ds, buf := newTestDisplay("table")
	ds.GetConfig().VerboseMode = true

	ds.PrintReport(sampleReport(t))
	if !strings.Contains(buf.String(), "x app/dsmr/dsmr.20231201-5.tgz") {
		t.Errorf("Verbose output should list deleted artifacts:\n%s", buf.String())
	}
}

func TestDisplayService_QuietMode(t *testing.T) {
	ds, buf := newTestDisplay("table")
	ds.GetConfig().QuietMode = true

	ds.PrintHeader("Cleanup")
	ds.Info("hidden")
	ds.PrintReport(sampleReport(t))
	output := buf.String()

	if strings.Contains(output, "Cleanup") || strings.Contains(output, "hidden") || strings.Contains(output, "ENTITY") {
		t.Errorf("Quiet mode should only print problems, got:\n%s", output)
	}
	if !strings.Contains(output, "[ERROR]") {
		t.Errorf("Quiet mode should still print errors, got:\n%s", output)
	}
}

func TestDisplayService_StructuredOutput(t *testing.T) {
	ds, buf := newTestDisplay("compact")

	ds.PrintHeader("ignored")
	ds.PrintPlans(samplePlans(t))
	ds.Success("done")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("Expected 5 lines, got %d:\n%s", len(lines), buf.String())
	}
	if lines[0] != "PLAN:local:/backup:app:dsmr:dsmr.20240107-7.tgz:day" {
		t.Errorf("First line = %q", lines[0])
	}
	if lines[4] != "STATUS:SUCCESS:done" {
		t.Errorf("Last line = %q", lines[4])
	}
}

func TestDisplayService_PrintPlans(t *testing.T) {
	ds, buf := newTestDisplay("table")
	ds.PrintPlans(samplePlans(t))
	output := buf.String()

	for _, want := range []string{
		"app/dsmr (local:/backup)",
		"dsmr.20240107-7.tgz",
		"2024-01-07",
		"+ keep (day)",
		"x expire",
		"? invalid: prefix",
		"- expiry disabled",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q, got:\n%s", want, output)
		}
	}
}

func TestDisplayService_PrintVerify(t *testing.T) {
	ds, buf := newTestDisplay("table")
	ds.PrintVerify([]*backup.VerifyOutcome{
		{Store: "local", Class: backup.EntityClassApp, Entity: "dsmr",
			Result: &backup.VerifyResult{Artifact: "dsmr.20240107-7.tgz", Compression: backup.CompressionTypeGzip, DecodedBytes: 4096}},
		{Store: "local", Class: backup.EntityClassDB, Entity: "mariadb", Error: "unexpected EOF"},
	})
	output := buf.String()

	if !strings.Contains(output, "4.0 KiB") || !strings.Contains(output, "unexpected EOF") {
		t.Errorf("Unexpected verify output:\n%s", output)
	}
	if !strings.Contains(output, "[ERROR] 1 of 2 artifact(s) failed verification") {
		t.Errorf("Missing verify summary:\n%s", output)
	}
}

func TestDisplayService_PrintUsageAndHealth(t *testing.T) {
	ds, buf := newTestDisplay("table")
	ds.PrintUsage(&backup.StorageUsageReport{
		TotalArtifacts: 3,
		TotalSize:      3 * 1024 * 1024,
		Entities: []*backup.EntityUsage{
			{Store: "local", Class: backup.EntityClassApp, Entity: "dsmr", ArtifactCount: 3, TotalSize: 3 * 1024 * 1024},
		},
	})
	ds.PrintHealth([]*backup.StoreHealth{
		{Store: "local", Status: "healthy", ResponseTime: time.Millisecond},
		{Store: "s3://bucket/", Status: "critical", Issue: "access denied"},
	})
	output := buf.String()

	for _, want := range []string{"app/dsmr", "3.0 MiB", "[INFO] 3 artifact(s), 3.0 MiB total", "[OK] healthy", "[ERR] critical", "access denied"} {
		if !strings.Contains(output, want) {
			t.Errorf("Output should contain %q, got:\n%s", want, output)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[int64]string{
		0:               "0 B",
		1023:            "1023 B",
		1024:            "1.0 KiB",
		1536:            "1.5 KiB",
		5 * 1024 * 1024: "5.0 MiB",
		3 << 30:         "3.0 GiB",
	}
	for n, want := range tests {
		if got := FormatBytes(n); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", n, got, want)
		}
	}
}
