package display

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// DisplayConfig holds configuration for command output
type DisplayConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled" yaml:"color_enabled"`
	Theme        string `mapstructure:"theme" yaml:"theme"`
	OutputFormat string `mapstructure:"output_format" yaml:"output_format"`
	UseIcons     bool   `mapstructure:"use_icons" yaml:"use_icons"`

	VerboseMode bool `mapstructure:"verbose" yaml:"verbose"`
	QuietMode   bool `mapstructure:"quiet" yaml:"quiet"`

	TableStyle    string `mapstructure:"table_style" yaml:"table_style"`
	MaxTableWidth int    `mapstructure:"max_table_width" yaml:"max_table_width"`

	Writer io.Writer `mapstructure:"-" yaml:"-"`
}

// TableStyleName represents available table styles
type TableStyleName string

const (
	TableStyleDefault TableStyleName = "default"
	TableStyleRounded TableStyleName = "rounded"
	TableStyleMinimal TableStyleName = "minimal"
)

// DefaultDisplayConfig returns a default display configuration
func DefaultDisplayConfig() *DisplayConfig {
	return &DisplayConfig{
		ColorEnabled:  true,
		Theme:         "dark",
		OutputFormat:  string(FormatTable),
		UseIcons:      true,
		TableStyle:    string(TableStyleDefault),
		MaxTableWidth: 160,
		Writer:        os.Stdout,
	}
}

// Validate validates the display configuration
func (dc *DisplayConfig) Validate() error {
	var errs []string

	if _, err := ParseOutputFormat(dc.OutputFormat); err != nil {
		errs = append(errs, err.Error())
	}

	switch TableStyleName(dc.TableStyle) {
	case TableStyleDefault, TableStyleRounded, TableStyleMinimal:
	default:
		errs = append(errs, fmt.Sprintf("invalid table style '%s', must be one of: default, rounded, minimal", dc.TableStyle))
	}

	if dc.MaxTableWidth < 40 || dc.MaxTableWidth > 300 {
		errs = append(errs, fmt.Sprintf("max table width must be between 40 and 300, got %d", dc.MaxTableWidth))
	}

	if dc.VerboseMode && dc.QuietMode {
		errs = append(errs, "verbose and quiet modes are mutually exclusive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("display configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SetDefaults sets default values for unspecified configuration options
func (dc *DisplayConfig) SetDefaults() {
	if dc.Theme == "" {
		dc.Theme = "dark"
	}
	if dc.OutputFormat == "" {
		dc.OutputFormat = string(FormatTable)
	}
	if dc.TableStyle == "" {
		dc.TableStyle = string(TableStyleDefault)
	}
	if dc.MaxTableWidth == 0 {
		dc.MaxTableWidth = 160
	}
	if dc.Writer == nil {
		dc.Writer = os.Stdout
	}
}

// Format returns the parsed output format, table when invalid
func (dc *DisplayConfig) Format() OutputFormat {
	format, err := ParseOutputFormat(dc.OutputFormat)
	if err != nil {
		return FormatTable
	}
	return format
}

// IsColorEnabled returns true if colors should be used
func (dc *DisplayConfig) IsColorEnabled() bool {
	return dc.ColorEnabled && !dc.QuietMode && !dc.Format().IsStructured()
}

// IsIconsEnabled returns true if icons should be used
func (dc *DisplayConfig) IsIconsEnabled() bool {
	return dc.UseIcons && !dc.QuietMode
}

func (dc *DisplayConfig) tableStyle() TableStyle {
	var style TableStyle
	switch TableStyleName(dc.TableStyle) {
	case TableStyleRounded:
		style = RoundedTableStyle
	case TableStyleMinimal:
		style = CompactTableStyle
	default:
		style = DefaultTableStyle
	}
	style.MaxWidth = dc.MaxTableWidth
	return style
}
