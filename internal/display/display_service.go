package display

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"backup-expiry/internal/backup"
)

// DisplayService renders command results for humans or scripts
type DisplayService interface {
	PrintHeader(title string)
	PrintReport(report *backup.RunReport)
	PrintPlans(results []*backup.EntityResult)
	PrintVerify(outcomes []*backup.VerifyOutcome)
	PrintUsage(usage *backup.StorageUsageReport)
	PrintHealth(health []*backup.StoreHealth)

	Success(message string)
	Warning(message string)
	Error(message string)
	Info(message string)

	SetOutput(writer io.Writer)
	GetConfig() *DisplayConfig
}

type displayService struct {
	config            *DisplayConfig
	theme             ColorTheme
	colorSystem       ColorSystem
	iconSystem        IconSystem
	writer            io.Writer
	formatterRegistry *FormatterRegistry
}

// NewDisplayService creates a new display service with the given configuration
func NewDisplayService(config *DisplayConfig) DisplayService {
	if config == nil {
		config = DefaultDisplayConfig()
	}
	config.SetDefaults()

	theme := GetThemeByName(config.Theme)
	iconSystem := NewIconSystem()
	if !config.IsIconsEnabled() {
		iconSystem.SetUnicodeSupport(false)
	}

	return &displayService{
		config:            config,
		theme:             theme,
		colorSystem:       NewColorSystem(theme, config.IsColorEnabled()),
		iconSystem:        iconSystem,
		writer:            config.Writer,
		formatterRegistry: NewFormatterRegistry(),
	}
}

// PrintHeader prints a formatted header
func (ds *displayService) PrintHeader(title string) {
	if ds.config.QuietMode || ds.config.Format().IsStructured() {
		return
	}

	separator := strings.Repeat("=", len(title)+4)
	fmt.Fprintf(ds.writer, "\n%s\n%s\n%s\n",
		ds.colorSystem.Colorize(separator, ds.theme.Primary),
		ds.colorSystem.Colorize("  "+title, ds.theme.Primary),
		ds.colorSystem.Colorize(separator, ds.theme.Primary))
}

// PrintReport prints the outcome of a cleanup run
func (ds *displayService) PrintReport(report *backup.RunReport) {
	if ds.printStructured("run report", func(f OutputFormatter) (string, error) { return f.FormatReport(report) }) {
		return
	}

	table := ds.newTable("ENTITY", "STORE", "POLICY", "RETAINED", "EXPIRED", "DELETED", "STATUS")
	for _, column := range []int{3, 4, 5} {
		table.SetColumnAlignment(column, AlignRight)
	}
	for _, result := range report.Entities {
		table.AddRow([]string{
			entityLabel(result.Class, result.Entity),
			result.Store,
			result.Policy.String(),
			strconv.Itoa(result.Retained),
			strconv.Itoa(result.Expired),
			strconv.Itoa(len(result.Deleted)),
			ds.entityStatus(result, report.DryRun),
		})
	}
	for _, images := range report.Images {
		status := ds.icon("success") + " ok"
		switch {
		case images.Skipped:
			status = ds.icon("skip") + " no image list"
		case len(images.Failed) > 0:
			status = ds.icon("error") + fmt.Sprintf(" %d failed", len(images.Failed))
		}
		table.AddRow([]string{"image", images.Store, "-", strconv.Itoa(len(images.Kept)), "-",
			strconv.Itoa(len(images.Deleted)), status})
	}

	if !ds.config.QuietMode {
		if len(report.Entities) > 0 || len(report.Images) > 0 {
			table.RenderTo(ds.writer)
		}
		if ds.config.VerboseMode {
			ds.printDeletedArtifacts(report)
		}
	}

	for _, msg := range report.Errors {
		ds.Error(msg)
	}

	summary := fmt.Sprintf("%d artifact(s) deleted in %s", report.TotalDeleted(), report.Duration().Round(time.Millisecond))
	if report.DryRun {
		summary = fmt.Sprintf("%s dry run, nothing deleted", ds.icon("dry-run"))
	}
	if report.HasErrors() {
		ds.Warning(fmt.Sprintf("%s with %d error(s)", summary, report.ErrorCount()))
		return
	}
	ds.Success(summary)
}

func (ds *displayService) printDeletedArtifacts(report *backup.RunReport) {
	for _, result := range report.Entities {
		for _, name := range result.Deleted {
			fmt.Fprintf(ds.writer, "  %s %s/%s\n", ds.icon("expire"), entityLabel(result.Class, result.Entity), name)
		}
		for _, name := range result.Failed {
			fmt.Fprintf(ds.writer, "  %s %s/%s\n", ds.icon("error"), entityLabel(result.Class, result.Entity), name)
		}
	}
}

func (ds *displayService) entityStatus(result *backup.EntityResult, dryRun bool) string {
	switch {
	case result.Skipped:
		return ds.icon("skip") + " " + result.SkipReason
	case len(result.Failed) > 0:
		return ds.icon("error") + fmt.Sprintf(" %d failed", len(result.Failed))
	case len(result.Invalid) > 0:
		return ds.icon("invalid") + fmt.Sprintf(" %d invalid", len(result.Invalid))
	case dryRun && result.Expired > 0:
		return ds.icon("dry-run") + " would delete"
	default:
		return ds.icon("success") + " ok"
	}
}

// PrintPlans prints per-artifact retention decisions
func (ds *displayService) PrintPlans(results []*backup.EntityResult) {
	if ds.printStructured("plans", func(f OutputFormatter) (string, error) { return f.FormatPlans(results) }) {
		return
	}

	for _, result := range results {
		if ds.config.QuietMode {
			break
		}
		title := fmt.Sprintf("%s (%s) %s", entityLabel(result.Class, result.Entity), result.Store, result.Policy.String())
		fmt.Fprintf(ds.writer, "\n%s\n", ds.colorSystem.Colorize(title, ds.theme.Highlight))

		if result.Skipped {
			fmt.Fprintf(ds.writer, "  %s %s\n", ds.icon("skip"), result.SkipReason)
			continue
		}

		table := ds.newTable("ARTIFACT", "DATE", "DECISION")
		if result.Plan != nil {
			for _, decision := range result.Plan.Decisions {
				table.AddRow([]string{
					decision.Artifact.Name,
					decision.Artifact.CaptureDate.Format("2006-01-02"),
					ds.decisionLabel(decision.Reason),
				})
			}
		}
		for _, invalid := range result.Invalid {
			table.AddRow([]string{invalid.Name, "-", ds.icon("invalid") + " invalid: " + invalid.Reason})
		}
		table.RenderTo(ds.writer)
	}
}

func (ds *displayService) decisionLabel(reason backup.DecisionReason) string {
	switch reason {
	case backup.DecisionExpired:
		return ds.icon("expire") + " " + ds.colorSystem.Colorize("expire", ds.theme.Error)
	case backup.DecisionKeepYearGuard:
		return ds.icon("guard") + " " + ds.colorSystem.Colorize("keep (year guard)", ds.theme.Warning)
	default:
		return ds.icon("keep") + " " + ds.colorSystem.Colorize("keep ("+string(reason)+")", ds.theme.Success)
	}
}

// PrintVerify prints the integrity check of the newest artifacts
func (ds *displayService) PrintVerify(outcomes []*backup.VerifyOutcome) {
	if ds.printStructured("verification", func(f OutputFormatter) (string, error) { return f.FormatVerify(outcomes) }) {
		return
	}

	table := ds.newTable("ENTITY", "STORE", "ARTIFACT", "COMPRESSION", "SIZE", "STATUS")
	table.SetColumnAlignment(4, AlignRight)
	failed := 0
	for _, outcome := range outcomes {
		label := entityLabel(outcome.Class, outcome.Entity)
		if !outcome.OK() {
			failed++
			table.AddRow([]string{label, outcome.Store, "-", "-", "-", ds.icon("error") + " " + outcome.Error})
			continue
		}
		result := outcome.Result
		table.AddRow([]string{label, outcome.Store, result.Artifact, string(result.Compression),
			FormatBytes(result.DecodedBytes), ds.icon("success") + " ok"})
	}
	if !ds.config.QuietMode && len(outcomes) > 0 {
		table.RenderTo(ds.writer)
	}

	if failed > 0 {
		ds.Error(fmt.Sprintf("%d of %d artifact(s) failed verification", failed, len(outcomes)))
		return
	}
	ds.Success(fmt.Sprintf("%d artifact(s) verified", len(outcomes)))
}

// PrintUsage prints storage usage per entity
func (ds *displayService) PrintUsage(usage *backup.StorageUsageReport) {
	if ds.printStructured("usage", func(f OutputFormatter) (string, error) { return f.FormatUsage(usage) }) {
		return
	}

	if !ds.config.QuietMode {
		table := ds.newTable("ENTITY", "STORE", "ARTIFACTS", "INVALID", "SIZE", "EXPIRED", "NEWEST")
		for _, column := range []int{2, 3, 4, 5} {
			table.SetColumnAlignment(column, AlignRight)
		}
		for _, entity := range usage.Entities {
			newest := "-"
			if !entity.NewestArtifact.IsZero() {
				newest = entity.NewestArtifact.Format("2006-01-02")
			}
			table.AddRow([]string{
				entityLabel(entity.Class, entity.Entity),
				entity.Store,
				strconv.Itoa(entity.ArtifactCount),
				strconv.Itoa(entity.InvalidCount),
				FormatBytes(entity.TotalSize),
				FormatBytes(entity.ExpiredSize),
				newest,
			})
		}
		table.RenderTo(ds.writer)
	}

	for _, msg := range usage.Errors {
		ds.Warning(msg)
	}
	ds.Info(fmt.Sprintf("%d artifact(s), %s total", usage.TotalArtifacts, FormatBytes(usage.TotalSize)))
}

// PrintHealth prints store connectivity
func (ds *displayService) PrintHealth(health []*backup.StoreHealth) {
	if ds.printStructured("health", func(f OutputFormatter) (string, error) { return f.FormatHealth(health) }) {
		return
	}
	if ds.config.QuietMode {
		return
	}

	table := ds.newTable("STORE", "STATUS", "RESPONSE", "ISSUE")
	table.SetColumnAlignment(2, AlignRight)
	for _, h := range health {
		status := ds.icon("success") + " " + h.Status
		if h.Status != "healthy" {
			status = ds.icon("error") + " " + ds.colorSystem.Colorize(h.Status, ds.theme.Error)
		}
		table.AddRow([]string{h.Store, status, h.ResponseTime.Round(time.Millisecond).String(), h.Issue})
	}
	table.RenderTo(ds.writer)
}

// Success prints a success message
func (ds *displayService) Success(message string) {
	ds.printStatusMessage("SUCCESS", message, ds.theme.Success)
}

// Warning prints a warning message
func (ds *displayService) Warning(message string) {
	ds.printStatusMessage("WARNING", message, ds.theme.Warning)
}

// Error prints an error message
func (ds *displayService) Error(message string) {
	ds.printStatusMessage("ERROR", message, ds.theme.Error)
}

// Info prints an info message
func (ds *displayService) Info(message string) {
	if ds.config.QuietMode {
		return
	}
	ds.printStatusMessage("INFO", message, ds.theme.Info)
}

// SetOutput sets the output writer
func (ds *displayService) SetOutput(writer io.Writer) {
	ds.writer = writer
	ds.config.Writer = writer
}

// GetConfig returns the current configuration
func (ds *displayService) GetConfig() *DisplayConfig {
	return ds.config
}

// Helper methods

func (ds *displayService) printStatusMessage(level, message string, color Color) {
	if ds.printStructured("status message", func(f OutputFormatter) (string, error) {
		return f.FormatStatusMessage(level, message)
	}) {
		return
	}

	prefix := ds.colorSystem.Colorize(fmt.Sprintf("[%s]", level), color)
	fmt.Fprintf(ds.writer, "%s %s\n", prefix, message)
}

// printStructured writes machine readable output and reports whether it did
func (ds *displayService) printStructured(kind string, format func(OutputFormatter) (string, error)) bool {
	formatter, ok := ds.formatterRegistry.GetFormatter(ds.config.Format())
	if !ok {
		return false
	}

	output, err := format(formatter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting %s: %v\n", kind, err)
		return true
	}
	fmt.Fprint(ds.writer, output)
	return true
}

func (ds *displayService) newTable(headers ...string) TableFormatter {
	table := NewTableFormatter(ds.colorSystem, ds.theme)
	table.SetStyle(ds.config.tableStyle())
	table.SetHeaders(headers)
	return table
}

func (ds *displayService) icon(name string) string {
	if !ds.config.IsIconsEnabled() {
		return ds.iconSystem.GetIcon(name).ASCII
	}
	return ds.iconSystem.RenderIconWithColor(name, ds.colorSystem)
}

func entityLabel(class backup.EntityClass, entity string) string {
	return string(class) + "/" + entity
}

// FormatBytes renders a byte count with binary units
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
