package display

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"backup-expiry/internal/backup"

	"gopkg.in/yaml.v3"
)

func sampleReport(t *testing.T) *backup.RunReport {
	t.Helper()
	started := time.Date(2024, time.January, 8, 3, 30, 0, 0, time.UTC)
	report := backup.NewRunReport("run-1", started)
	report.AddEntity(&backup.EntityResult{
		Store:    "local:/backup",
		Class:    backup.EntityClassApp,
		Entity:   "dsmr",
		Policy:   backup.RetentionPolicy{Day: 7, Month: 2, Year: 1},
		Retained: 9,
		Expired:  1,
		Deleted:  []string{"dsmr.20231201-5.tgz"},
	})
	report.AddEntity(&backup.EntityResult{
		Store:      "local:/backup",
		Class:      backup.EntityClassDB,
		Entity:     "mariadb",
		Skipped:    true,
		SkipReason: "expiry disabled",
	})
	report.AddImageCleanup(&backup.ImageCleanupResult{
		Store:   "local:/backup",
		Kept:    []string{"grafana.tar.gz"},
		Deleted: []string{"mosquitto.tar.gz"},
	})
	report.AddError("Directory 'local:/backup/other/zigbee' does not exist")
	report.Finish(started.Add(2 * time.Second))
	return report
}

func samplePlans(t *testing.T) []*backup.EntityResult {
	t.Helper()
	kept, err := backup.ParseArtifact("dsmr", "dsmr.20240107-7.tgz")
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}
	expired, err := backup.ParseArtifact("dsmr", "dsmr.20231129-3.tgz")
	if err != nil {
		t.Fatalf("ParseArtifact: %v", err)
	}

	return []*backup.EntityResult{
		{
			Store:  "local:/backup",
			Class:  backup.EntityClassApp,
			Entity: "dsmr",
			Plan: &backup.RetentionPlan{
				Decisions: []backup.RetentionDecision{
					{Artifact: kept, Reason: backup.DecisionKeepDay},
					{Artifact: expired, Reason: backup.DecisionExpired},
				},
			},
			Invalid: []backup.InvalidArtifact{{Name: "notes.txt", Reason: backup.InvalidReasonPrefix}},
		},
		{
			Store:      "local:/backup",
			Class:      backup.EntityClassDB,
			Entity:     "mariadb",
			Skipped:    true,
			SkipReason: "expiry disabled",
		},
	}
}

func TestJSONFormatter_FormatReport(t *testing.T) {
	output, err := NewJSONFormatter().FormatReport(sampleReport(t))
	if err != nil {
		t.Fatalf("FormatReport() error: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("Output is not valid JSON: %v\n%s", err, output)
	}
	if decoded["run_id"] != "run-1" {
		t.Errorf("run_id = %v", decoded["run_id"])
	}
	if entities, ok := decoded["entities"].([]interface{}); !ok || len(entities) != 2 {
		t.Errorf("Expected 2 entities, got %v", decoded["entities"])
	}
	if !strings.Contains(output, `"skip_reason": "expiry disabled"`) {
		t.Errorf("Expected skip reason in output:\n%s", output)
	}
}

func TestYAMLFormatter_FormatPlans(t *testing.T) {
	output, err := NewYAMLFormatter().FormatPlans(samplePlans(t))
	if err != nil {
		t.Fatalf("FormatPlans() error: %v", err)
	}

	var decoded struct {
		Entities []struct {
			Entity string `yaml:"entity"`
			Plan   struct {
				Decisions []struct {
					Reason string `yaml:"reason"`
				} `yaml:"decisions"`
			} `yaml:"plan"`
		} `yaml:"entities"`
	}
	if err := yaml.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("Output is not valid YAML: %v\n%s", err, output)
	}
	if len(decoded.Entities) != 2 || decoded.Entities[0].Entity != "dsmr" {
		t.Fatalf("Unexpected entities: %+v", decoded.Entities)
	}
	if got := decoded.Entities[0].Plan.Decisions[1].Reason; got != "expired" {
		t.Errorf("Second decision reason = %q, want expired", got)
	}
}

func TestCompactFormatter_FormatReport(t *testing.T) {
	output, err := NewCompactFormatter().FormatReport(sampleReport(t))
	if err != nil {
		t.Fatalf("FormatReport() error: %v", err)
	}

	want := strings.Join([]string{
		"RUN:run-1:errors=1,deleted=2,dry_run=false",
		"DELETED:local:/backup:app:dsmr:dsmr.20231201-5.tgz",
		"DELETED:local:/backup:image:image:mosquitto.tar.gz",
		"ERROR:Directory 'local:/backup/other/zigbee' does not exist",
		"",
	}, "\n")
	if output != want {
		t.Errorf("FormatReport() =\n%s\nwant\n%s", output, want)
	}
}

func TestCompactFormatter_FormatPlans(t *testing.T) {
	output, err := NewCompactFormatterWithSeparator("\t").FormatPlans(samplePlans(t))
	if err != nil {
		t.Fatalf("FormatPlans() error: %v", err)
	}

	want := strings.Join([]string{
		"PLAN\tlocal:/backup\tapp\tdsmr\tdsmr.20240107-7.tgz\tday",
		"PLAN\tlocal:/backup\tapp\tdsmr\tdsmr.20231129-3.tgz\texpired",
		"INVALID\tlocal:/backup\tapp\tdsmr\tnotes.txt\t" + backup.InvalidReasonPrefix,
		"SKIP\tlocal:/backup\tdb\tmariadb\texpiry disabled",
		"",
	}, "\n")
	if output != want {
		t.Errorf("FormatPlans() =\n%s\nwant\n%s", output, want)
	}
}

func TestCompactFormatter_FormatHealthAndUsage(t *testing.T) {
	formatter := NewCompactFormatter()

	health, err := formatter.FormatHealth([]*backup.StoreHealth{
		{Store: "s3://bucket/", Status: "critical", ResponseTime: 1500 * time.Millisecond, Issue: "timeout"},
	})
	if err != nil {
		t.Fatalf("FormatHealth() error: %v", err)
	}
	if health != "HEALTH:s3://bucket/:critical:1500:timeout\n" {
		t.Errorf("FormatHealth() = %q", health)
	}

	usage, err := formatter.FormatUsage(&backup.StorageUsageReport{
		Entities: []*backup.EntityUsage{
			{Store: "local", Class: backup.EntityClassApp, Entity: "dsmr", ArtifactCount: 10, InvalidCount: 1, TotalSize: 2048, ExpiredSize: 512},
		},
		StorageByAge: map[string]int{"older": 2, "week": 8},
	})
	if err != nil {
		t.Fatalf("FormatUsage() error: %v", err)
	}
	want := "USAGE:local:app:dsmr:10:1:2048:512\nAGE:older:2\nAGE:week:8\n"
	if usage != want {
		t.Errorf("FormatUsage() = %q, want %q", usage, want)
	}
}

func TestCompactFormatter_FormatVerify(t *testing.T) {
	output, err := NewCompactFormatter().FormatVerify([]*backup.VerifyOutcome{
		{Store: "local", Class: backup.EntityClassApp, Entity: "dsmr", Result: &backup.VerifyResult{Artifact: "dsmr.20240107-7.tgz"}},
		{Store: "local", Class: backup.EntityClassDB, Entity: "mariadb", Error: "corrupt"},
	})
	if err != nil {
		t.Fatalf("FormatVerify() error: %v", err)
	}
	want := "VERIFY:local:app:dsmr:dsmr.20240107-7.tgz:ok\nVERIFY:local:db:mariadb::corrupt\n"
	if output != want {
		t.Errorf("FormatVerify() = %q, want %q", output, want)
	}
}

func TestFormatterRegistry(t *testing.T) {
	registry := NewFormatterRegistry()

	for _, format := range []OutputFormat{FormatJSON, FormatYAML, FormatCompact} {
		if _, ok := registry.GetFormatter(format); !ok {
			t.Errorf("Missing formatter for %s", format)
		}
	}
	if _, ok := registry.GetFormatter(FormatTable); ok {
		t.Error("Table output is rendered by the display service, not a formatter")
	}

	status, err := registry.formatters[FormatCompact].FormatStatusMessage("INFO", "done")
	if err != nil || status != "STATUS:INFO:done\n" {
		t.Errorf("FormatStatusMessage() = %q, %v", status, err)
	}
}
