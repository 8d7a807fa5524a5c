package backup

import (
	"time"
)

// DecisionReason explains why an artifact was kept or expired
type DecisionReason string

const (
	DecisionKeepDay   DecisionReason = "day"
	DecisionKeepMonth DecisionReason = "month"
	DecisionKeepYear  DecisionReason = "year"
	// DecisionKeepYearGuard marks the previous-year artifact rescued from deletion
	DecisionKeepYearGuard DecisionReason = "year-guard"
	DecisionExpired       DecisionReason = "expired"
)

// Retained reports whether the reason keeps the artifact
func (r DecisionReason) Retained() bool {
	return r != DecisionExpired
}

// RetentionDecision is the outcome for a single artifact
type RetentionDecision struct {
	Artifact BackupArtifact `json:"artifact" yaml:"artifact"`
	Reason   DecisionReason `json:"reason" yaml:"reason"`
	// Remaining is the tier counter value before it was consumed by this artifact
	Remaining int `json:"remaining,omitempty" yaml:"remaining,omitempty"`
}

// RetentionPlan is the complete classification of one entity's artifacts.
// Decisions are in scan order (newest first).
type RetentionPlan struct {
	Policy    RetentionPolicy     `json:"policy" yaml:"policy"`
	Today     time.Time           `json:"today" yaml:"today"`
	Skipped   bool                `json:"skipped" yaml:"skipped"`
	Decisions []RetentionDecision `json:"decisions" yaml:"decisions"`
}

// Expired returns the artifacts to delete, newest first
func (p *RetentionPlan) Expired() []BackupArtifact {
	var expired []BackupArtifact
	for _, decision := range p.Decisions {
		if decision.Reason == DecisionExpired {
			expired = append(expired, decision.Artifact)
		}
	}
	return expired
}

// Retained returns the artifacts that survive, newest first
func (p *RetentionPlan) Retained() []BackupArtifact {
	var retained []BackupArtifact
	for _, decision := range p.Decisions {
		if decision.Reason.Retained() {
			retained = append(retained, decision.Artifact)
		}
	}
	return retained
}

// CountByReason tallies decisions per reason
func (p *RetentionPlan) CountByReason() map[DecisionReason]int {
	counts := make(map[DecisionReason]int)
	for _, decision := range p.Decisions {
		counts[decision.Reason]++
	}
	return counts
}

// PlanRetention classifies artifacts of a single entity against policy.
//
// The scan runs newest first with three countdown counters in strict
// priority order day > month > year. An artifact consumes at most one
// counter. If the year tier is still open after the scan, the first expired
// artifact from the previous calendar year (relative to today) is kept.
//
// The result depends only on the arguments.
func PlanRetention(artifacts []BackupArtifact, policy RetentionPolicy, today time.Time) *RetentionPlan {
	plan := &RetentionPlan{
		Policy: policy,
		Today:  today,
	}

	if policy.IsExpiryDisabled() {
		plan.Skipped = true
		return plan
	}

	day, month, year := policy.Day, policy.Month, policy.Year
	var expiredIdx []int

	for _, artifact := range SortArtifactsNewestFirst(artifacts) {
		decision := RetentionDecision{Artifact: artifact, Reason: DecisionExpired}

		switch {
		case day > 0:
			decision.Reason, decision.Remaining = DecisionKeepDay, day
			day--
		case month > 0 && artifact.IsFirstSundayOfMonth():
			decision.Reason, decision.Remaining = DecisionKeepMonth, month
			month--
		case year > 0 && artifact.IsFirstSundayOfDecember():
			decision.Reason, decision.Remaining = DecisionKeepYear, year
			year--
		default:
			expiredIdx = append(expiredIdx, len(plan.Decisions))
		}

		plan.Decisions = append(plan.Decisions, decision)
	}

	// No December artifact filled the year tier: keep one from last year
	if year > 0 {
		lastYear := today.Year() - 1
		for _, idx := range expiredIdx {
			if plan.Decisions[idx].Artifact.InYear(lastYear) {
				plan.Decisions[idx].Reason = DecisionKeepYearGuard
				plan.Decisions[idx].Remaining = year
				break
			}
		}
	}

	return plan
}

// ComputeExpirySet returns the artifacts that policy expires, newest first
func ComputeExpirySet(artifacts []BackupArtifact, policy RetentionPolicy, today time.Time) []BackupArtifact {
	return PlanRetention(artifacts, policy, today).Expired()
}
