package backup

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Weekday digits as embedded in artifact names (ISO 8601 numbering)
const (
	WeekdayMonday = 1
	WeekdaySunday = 7
)

// artifactDateLayout is the layout of the date token embedded in artifact names
const artifactDateLayout = "20060102"

// BackupArtifact is a completed backup file for one entity, parsed from its
// name <entity>.<YYYYMMDD>-<weekday>.<suffix>
type BackupArtifact struct {
	Name        string    `json:"name" yaml:"name"`
	Entity      string    `json:"entity" yaml:"entity"`
	CaptureDate time.Time `json:"capture_date" yaml:"capture_date"`
	Weekday     int       `json:"weekday" yaml:"weekday"`
	Suffix      string    `json:"suffix" yaml:"suffix"`
}

// InvalidArtifact is a listed name that does not follow the artifact naming scheme
type InvalidArtifact struct {
	Name   string `json:"name" yaml:"name"`
	Reason string `json:"reason" yaml:"reason"`
}

// ArtifactNameError describes why a name could not be parsed as an artifact
type ArtifactNameError struct {
	Name   string
	Reason string
}

// Error implements the error interface
func (e *ArtifactNameError) Error() string {
	return fmt.Sprintf("artifact name '%s' is invalid (%s)", e.Name, e.Reason)
}

// Reasons reported by ParseArtifact
const (
	InvalidReasonPrefix  = "prefix"
	InvalidReasonFormat  = "no date/time"
	InvalidReasonDate    = "date"
	InvalidReasonWeekday = "weekday"
)

// ParseArtifact parses name as an artifact belonging to entity.
func ParseArtifact(entity, name string) (BackupArtifact, error) {
	prefix := entity + "."
	if entity == "" || !strings.HasPrefix(name, prefix) {
		return BackupArtifact{}, &ArtifactNameError{Name: name, Reason: InvalidReasonPrefix}
	}

	// 8 date digits, '-', weekday digit, '.', then the suffix (may be empty)
	rest := name[len(prefix):]
	if len(rest) < 11 || rest[8] != '-' || rest[10] != '.' {
		return BackupArtifact{}, &ArtifactNameError{Name: name, Reason: InvalidReasonFormat}
	}

	dateToken := rest[:8]
	for _, r := range dateToken {
		if r < '0' || r > '9' {
			return BackupArtifact{}, &ArtifactNameError{Name: name, Reason: InvalidReasonFormat}
		}
	}

	weekday := rest[9]
	if weekday < '1' || weekday > '7' {
		return BackupArtifact{}, &ArtifactNameError{Name: name, Reason: InvalidReasonWeekday}
	}

	captureDate, err := time.ParseInLocation(artifactDateLayout, dateToken, time.UTC)
	if err != nil {
		return BackupArtifact{}, &ArtifactNameError{Name: name, Reason: InvalidReasonDate}
	}

	return BackupArtifact{
		Name:        name,
		Entity:      entity,
		CaptureDate: captureDate,
		Weekday:     int(weekday - '0'),
		Suffix:      rest[11:],
	}, nil
}

// ParseArtifacts splits names into parsed artifacts and unrecognized names.
// The input order is preserved in both results.
func ParseArtifacts(entity string, names []string) ([]BackupArtifact, []InvalidArtifact) {
	var valid []BackupArtifact
	var invalid []InvalidArtifact

	for _, name := range names {
		artifact, err := ParseArtifact(entity, name)
		if err != nil {
			reason := err.Error()
			if nameErr, ok := err.(*ArtifactNameError); ok {
				reason = nameErr.Reason
			}
			invalid = append(invalid, InvalidArtifact{Name: name, Reason: reason})
			continue
		}
		valid = append(valid, artifact)
	}

	return valid, invalid
}

// FormatArtifactName builds the artifact name for entity captured on date
func FormatArtifactName(entity string, date time.Time, suffix string) string {
	return fmt.Sprintf("%s.%s-%d.%s", entity, date.Format(artifactDateLayout), ISOWeekday(date), suffix)
}

// ISOWeekday returns the ISO weekday number of t (Monday=1 .. Sunday=7)
func ISOWeekday(t time.Time) int {
	if t.Weekday() == time.Sunday {
		return WeekdaySunday
	}
	return int(t.Weekday())
}

// IsSunday reports whether the embedded weekday digit is Sunday
func (a BackupArtifact) IsSunday() bool {
	return a.Weekday == WeekdaySunday
}

// IsFirstSundayOfMonth reports whether the artifact was taken on a Sunday
// within the first seven days of its month
func (a BackupArtifact) IsFirstSundayOfMonth() bool {
	return a.IsSunday() && a.CaptureDate.Day() <= 7
}

// IsFirstSundayOfDecember reports whether the artifact is the first Sunday of December
func (a BackupArtifact) IsFirstSundayOfDecember() bool {
	return a.IsFirstSundayOfMonth() && a.CaptureDate.Month() == time.December
}

// InYear reports whether the artifact was captured in the given calendar year
func (a BackupArtifact) InYear(year int) bool {
	return a.CaptureDate.Year() == year
}

// SortArtifactsNewestFirst orders artifacts by name descending, which is
// capture date descending for a single entity
func SortArtifactsNewestFirst(artifacts []BackupArtifact) []BackupArtifact {
	sorted := make([]BackupArtifact, len(artifacts))
	copy(sorted, artifacts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Name > sorted[j].Name
	})
	return sorted
}
