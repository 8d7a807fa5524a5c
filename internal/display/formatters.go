package display

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"backup-expiry/internal/backup"

	"gopkg.in/yaml.v3"
)

// OutputFormatter renders command results in a machine readable format
type OutputFormatter interface {
	FormatReport(report *backup.RunReport) (string, error)
	FormatPlans(results []*backup.EntityResult) (string, error)
	FormatVerify(outcomes []*backup.VerifyOutcome) (string, error)
	FormatUsage(usage *backup.StorageUsageReport) (string, error)
	FormatHealth(health []*backup.StoreHealth) (string, error)
	FormatStatusMessage(level, message string) (string, error)
}

// JSONFormatter implements OutputFormatter for JSON output
type JSONFormatter struct {
	indent string
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{indent: "  "}
}

func (f *JSONFormatter) marshal(kind string, v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", f.indent)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", kind, err)
	}
	return string(data) + "\n", nil
}

// FormatReport formats a run report as JSON
func (f *JSONFormatter) FormatReport(report *backup.RunReport) (string, error) {
	return f.marshal("run report", report)
}

// FormatPlans formats retention plans as JSON
func (f *JSONFormatter) FormatPlans(results []*backup.EntityResult) (string, error) {
	return f.marshal("plans", map[string]interface{}{"entities": results})
}

// FormatVerify formats verification outcomes as JSON
func (f *JSONFormatter) FormatVerify(outcomes []*backup.VerifyOutcome) (string, error) {
	return f.marshal("verification", map[string]interface{}{"verified": outcomes})
}

// FormatUsage formats a storage usage report as JSON
func (f *JSONFormatter) FormatUsage(usage *backup.StorageUsageReport) (string, error) {
	return f.marshal("usage", usage)
}

// FormatHealth formats store health as JSON
func (f *JSONFormatter) FormatHealth(health []*backup.StoreHealth) (string, error) {
	return f.marshal("health", map[string]interface{}{"stores": health})
}

// FormatStatusMessage formats a status message as JSON
func (f *JSONFormatter) FormatStatusMessage(level, message string) (string, error) {
	return f.marshal("status message", map[string]string{"level": level, "message": message})
}

// YAMLFormatter implements OutputFormatter for YAML output
type YAMLFormatter struct{}

// NewYAMLFormatter creates a new YAML formatter
func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) marshal(kind string, v interface{}) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", kind, err)
	}
	return string(data), nil
}

// FormatReport formats a run report as YAML
func (f *YAMLFormatter) FormatReport(report *backup.RunReport) (string, error) {
	return f.marshal("run report", report)
}

// FormatPlans formats retention plans as YAML
func (f *YAMLFormatter) FormatPlans(results []*backup.EntityResult) (string, error) {
	return f.marshal("plans", map[string]interface{}{"entities": results})
}

// FormatVerify formats verification outcomes as YAML
func (f *YAMLFormatter) FormatVerify(outcomes []*backup.VerifyOutcome) (string, error) {
	return f.marshal("verification", map[string]interface{}{"verified": outcomes})
}

// FormatUsage formats a storage usage report as YAML
func (f *YAMLFormatter) FormatUsage(usage *backup.StorageUsageReport) (string, error) {
	return f.marshal("usage", usage)
}

// FormatHealth formats store health as YAML
func (f *YAMLFormatter) FormatHealth(health []*backup.StoreHealth) (string, error) {
	return f.marshal("health", map[string]interface{}{"stores": health})
}

// FormatStatusMessage formats a status message as YAML
func (f *YAMLFormatter) FormatStatusMessage(level, message string) (string, error) {
	return f.marshal("status message", map[string]string{"level": level, "message": message})
}

// CompactFormatter implements OutputFormatter for scripting. Every line
// starts with a record type followed by separator delimited fields:
//
//	RUN:<run id>:errors=<n>,deleted=<n>,dry_run=<bool>
//	DELETED:<store>:<class>:<entity>:<artifact>
//	FAILED:<store>:<class>:<entity>:<artifact>
//	PLAN:<store>:<class>:<entity>:<artifact>:<reason>
//	INVALID:<store>:<class>:<entity>:<name>:<reason>
//	SKIP:<store>:<class>:<entity>:<reason>
//	VERIFY:<store>:<class>:<entity>:<artifact>:<ok|error message>
//	USAGE:<store>:<class>:<entity>:<artifacts>:<invalid>:<bytes>:<expired bytes>
//	HEALTH:<store>:<status>:<response ms>:<issue>
//	ERROR:<message>
//	STATUS:<level>:<message>
type CompactFormatter struct {
	separator string
}

// NewCompactFormatter creates a new compact formatter with ':' separators
func NewCompactFormatter() *CompactFormatter {
	return &CompactFormatter{separator: ":"}
}

// NewCompactFormatterWithSeparator creates a compact formatter with a custom separator
func NewCompactFormatterWithSeparator(separator string) *CompactFormatter {
	return &CompactFormatter{separator: separator}
}

func (f *CompactFormatter) line(b *strings.Builder, fields ...interface{}) {
	parts := make([]string, len(fields))
	for i, field := range fields {
		parts[i] = fmt.Sprint(field)
	}
	b.WriteString(strings.Join(parts, f.separator))
	b.WriteString("\n")
}

// FormatReport formats a run report in compact format
func (f *CompactFormatter) FormatReport(report *backup.RunReport) (string, error) {
	var b strings.Builder
	f.line(&b, "RUN", report.RunID, fmt.Sprintf("errors=%d,deleted=%d,dry_run=%t",
		report.ErrorCount(), report.TotalDeleted(), report.DryRun))

	for _, result := range report.Entities {
		for _, name := range result.Deleted {
			f.line(&b, "DELETED", result.Store, result.Class, result.Entity, name)
		}
		for _, name := range result.Failed {
			f.line(&b, "FAILED", result.Store, result.Class, result.Entity, name)
		}
	}
	for _, images := range report.Images {
		for _, name := range images.Deleted {
			f.line(&b, "DELETED", images.Store, "image", "image", name)
		}
		for _, name := range images.Failed {
			f.line(&b, "FAILED", images.Store, "image", "image", name)
		}
	}
	for _, msg := range report.Errors {
		f.line(&b, "ERROR", msg)
	}

	return b.String(), nil
}

// FormatPlans formats retention plans in compact format
func (f *CompactFormatter) FormatPlans(results []*backup.EntityResult) (string, error) {
	var b strings.Builder
	for _, result := range results {
		if result.Skipped {
			f.line(&b, "SKIP", result.Store, result.Class, result.Entity, result.SkipReason)
			continue
		}
		if result.Plan != nil {
			for _, decision := range result.Plan.Decisions {
				f.line(&b, "PLAN", result.Store, result.Class, result.Entity, decision.Artifact.Name, decision.Reason)
			}
		}
		for _, invalid := range result.Invalid {
			f.line(&b, "INVALID", result.Store, result.Class, result.Entity, invalid.Name, invalid.Reason)
		}
	}
	return b.String(), nil
}

// FormatVerify formats verification outcomes in compact format
func (f *CompactFormatter) FormatVerify(outcomes []*backup.VerifyOutcome) (string, error) {
	var b strings.Builder
	for _, outcome := range outcomes {
		if outcome.OK() {
			f.line(&b, "VERIFY", outcome.Store, outcome.Class, outcome.Entity, outcome.Result.Artifact, "ok")
			continue
		}
		f.line(&b, "VERIFY", outcome.Store, outcome.Class, outcome.Entity, "", outcome.Error)
	}
	return b.String(), nil
}

// FormatUsage formats a storage usage report in compact format
func (f *CompactFormatter) FormatUsage(usage *backup.StorageUsageReport) (string, error) {
	var b strings.Builder
	for _, entity := range usage.Entities {
		f.line(&b, "USAGE", entity.Store, entity.Class, entity.Entity,
			entity.ArtifactCount, entity.InvalidCount, entity.TotalSize, entity.ExpiredSize)
	}

	groups := make([]string, 0, len(usage.StorageByAge))
	for group := range usage.StorageByAge {
		groups = append(groups, group)
	}
	sort.Strings(groups)
	for _, group := range groups {
		f.line(&b, "AGE", group, usage.StorageByAge[group])
	}

	for _, msg := range usage.Errors {
		f.line(&b, "ERROR", msg)
	}
	return b.String(), nil
}

// FormatHealth formats store health in compact format
func (f *CompactFormatter) FormatHealth(health []*backup.StoreHealth) (string, error) {
	var b strings.Builder
	for _, h := range health {
		f.line(&b, "HEALTH", h.Store, h.Status, h.ResponseTime.Milliseconds(), h.Issue)
	}
	return b.String(), nil
}

// FormatStatusMessage formats a status message in compact format
func (f *CompactFormatter) FormatStatusMessage(level, message string) (string, error) {
	return fmt.Sprintf("STATUS%s%s%s%s\n", f.separator, level, f.separator, message), nil
}

// FormatterRegistry manages the machine readable formatters
type FormatterRegistry struct {
	formatters map[OutputFormat]OutputFormatter
}

// NewFormatterRegistry creates a new formatter registry with default formatters
func NewFormatterRegistry() *FormatterRegistry {
	registry := &FormatterRegistry{
		formatters: make(map[OutputFormat]OutputFormatter),
	}

	registry.Register(FormatJSON, NewJSONFormatter())
	registry.Register(FormatYAML, NewYAMLFormatter())
	registry.Register(FormatCompact, NewCompactFormatter())

	return registry
}

// Register registers a formatter for a specific output format
func (r *FormatterRegistry) Register(format OutputFormat, formatter OutputFormatter) {
	r.formatters[format] = formatter
}

// GetFormatter returns the formatter for the specified format
func (r *FormatterRegistry) GetFormatter(format OutputFormat) (OutputFormatter, bool) {
	formatter, ok := r.formatters[format]
	return formatter, ok
}
