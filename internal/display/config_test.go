package display

import (
	"strings"
	"testing"
)

func TestDisplayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*DisplayConfig)
		wantErr string
	}{
		{name: "defaults", modify: func(*DisplayConfig) {}},
		{name: "json output", modify: func(c *DisplayConfig) { c.OutputFormat = "json" }},
		{
			name:    "unknown format",
			modify:  func(c *DisplayConfig) { c.OutputFormat = "xml" },
			wantErr: "invalid output format",
		},
		{
			name:    "unknown table style",
			modify:  func(c *DisplayConfig) { c.TableStyle = "fancy" },
			wantErr: "invalid table style",
		},
		{
			name:    "narrow table",
			modify:  func(c *DisplayConfig) { c.MaxTableWidth = 10 },
			wantErr: "max table width",
		},
		{
			name: "verbose and quiet",
			modify: func(c *DisplayConfig) {
				c.VerboseMode = true
				c.QuietMode = true
			},
			wantErr: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDisplayConfig()
			tt.modify(config)

			err := config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDisplayConfig_SetDefaults(t *testing.T) {
	config := &DisplayConfig{}
	config.SetDefaults()

	if config.Theme != "dark" || config.OutputFormat != "table" || config.TableStyle != "default" {
		t.Errorf("Unexpected defaults: %+v", config)
	}
	if config.MaxTableWidth != 160 {
		t.Errorf("MaxTableWidth = %d, want 160", config.MaxTableWidth)
	}
	if config.Writer == nil {
		t.Error("Writer should default to stdout")
	}
}

func TestDisplayConfig_ColorAndIcons(t *testing.T) {
	config := DefaultDisplayConfig()
	if !config.IsColorEnabled() || !config.IsIconsEnabled() {
		t.Fatal("Colors and icons should be enabled by default")
	}

	config.OutputFormat = "json"
	if config.IsColorEnabled() {
		t.Error("Structured output should never be colored")
	}

	config.OutputFormat = "table"
	config.QuietMode = true
	if config.IsColorEnabled() || config.IsIconsEnabled() {
		t.Error("Quiet mode should disable colors and icons")
	}
}

func TestParseOutputFormat(t *testing.T) {
	for input, want := range map[string]OutputFormat{
		"":        FormatTable,
		"TABLE":   FormatTable,
		"json":    FormatJSON,
		"Yaml":    FormatYAML,
		"compact": FormatCompact,
	} {
		got, err := ParseOutputFormat(input)
		if err != nil || got != want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v; want %q", input, got, err, want)
		}
	}

	if _, err := ParseOutputFormat("csv"); err == nil {
		t.Error("ParseOutputFormat(csv) should fail")
	}
	if FormatTable.IsStructured() || !FormatCompact.IsStructured() {
		t.Error("Only json, yaml and compact are structured")
	}
}

func TestDisplayConfig_TableStyle(t *testing.T) {
	config := DefaultDisplayConfig()
	config.TableStyle = "rounded"
	config.MaxTableWidth = 80

	style := config.tableStyle()
	if style.Name != "rounded" || style.MaxWidth != 80 {
		t.Errorf("tableStyle() = %+v", style)
	}

	config.TableStyle = "minimal"
	if config.tableStyle().Border.Vertical != "" {
		t.Error("Minimal style should not have borders")
	}
}
