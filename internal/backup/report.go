package backup

import (
	"fmt"
	"sync"
	"time"
)

// EntityResult is the outcome of cleaning one entity in one store
type EntityResult struct {
	Store      string            `json:"store" yaml:"store"`
	Class      EntityClass       `json:"class" yaml:"class"`
	Entity     string            `json:"entity" yaml:"entity"`
	Policy     RetentionPolicy   `json:"policy" yaml:"policy"`
	Skipped    bool              `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	SkipReason string            `json:"skip_reason,omitempty" yaml:"skip_reason,omitempty"`
	Retained   int               `json:"retained" yaml:"retained"`
	Expired    int               `json:"expired" yaml:"expired"`
	Deleted    []string          `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Failed     []string          `json:"failed,omitempty" yaml:"failed,omitempty"`
	Invalid    []InvalidArtifact `json:"invalid,omitempty" yaml:"invalid,omitempty"`
	Plan       *RetentionPlan    `json:"plan,omitempty" yaml:"plan,omitempty"`
	Verified   *VerifyResult     `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// Label identifies the entity in messages, e.g. "app dsmr"
func (er *EntityResult) Label() string {
	return fmt.Sprintf("%s %s", er.Class, er.Entity)
}

// ImageCleanupResult is the outcome of the image cleanup step for one store
type ImageCleanupResult struct {
	Store   string   `json:"store" yaml:"store"`
	Skipped bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Kept    []string `json:"kept,omitempty" yaml:"kept,omitempty"`
	Deleted []string `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Failed  []string `json:"failed,omitempty" yaml:"failed,omitempty"`
}

// RunReport collects everything that happened during one run, including
// every error message, for logging and notification at the end of the run
type RunReport struct {
	RunID      string                `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time             `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	DryRun     bool                  `json:"dry_run" yaml:"dry_run"`
	Manual     bool                  `json:"manual" yaml:"manual"`
	Entities   []*EntityResult       `json:"entities" yaml:"entities"`
	Images     []*ImageCleanupResult `json:"images,omitempty" yaml:"images,omitempty"`
	Errors     []string              `json:"errors,omitempty" yaml:"errors,omitempty"`

	mu sync.Mutex
}

// NewRunReport creates an empty report for a run starting at startedAt
func NewRunReport(runID string, startedAt time.Time) *RunReport {
	return &RunReport{
		RunID:     runID,
		StartedAt: startedAt,
	}
}

// AddError records an error message
func (r *RunReport) AddError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, msg)
}

// AddEntity records the result for one entity
func (r *RunReport) AddEntity(result *EntityResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entities = append(r.Entities, result)
}

// AddImageCleanup records the result of an image cleanup
func (r *RunReport) AddImageCleanup(result *ImageCleanupResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Images = append(r.Images, result)
}

// Finish stamps the end of the run
func (r *RunReport) Finish(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = at
}

// Duration returns how long the run took, zero while it is still running
func (r *RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ErrorCount returns the number of recorded errors
func (r *RunReport) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}

// HasErrors reports whether any error was recorded
func (r *RunReport) HasErrors() bool {
	return r.ErrorCount() > 0
}

// FirstError returns the first recorded error message, or ""
func (r *RunReport) FirstError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0]
}

// TotalDeleted returns the number of artifacts and images deleted
func (r *RunReport) TotalDeleted() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, entity := range r.Entities {
		total += len(entity.Deleted)
	}
	for _, images := range r.Images {
		total += len(images.Deleted)
	}
	return total
}

// Summary renders the one-line message sent to notification channels
func (r *RunReport) Summary() string {
	count := r.ErrorCount()
	if count == 0 {
		return fmt.Sprintf("Backup: no errors, %d artifact(s) deleted", r.TotalDeleted())
	}
	return fmt.Sprintf("Backup: %d error(s), Msg1=%s", count, r.FirstError())
}
