package backup

import (
	"fmt"
	"strings"
)

// EntityClass groups backed-up entities that share default retention settings
type EntityClass string

const (
	EntityClassApp   EntityClass = "app"
	EntityClassDB    EntityClass = "db"
	EntityClassOther EntityClass = "other"
)

// AllEntityClasses lists the classes in processing order
var AllEntityClasses = []EntityClass{EntityClassApp, EntityClassDB, EntityClassOther}

// ParseEntityClass converts a command-line or config value to an EntityClass
func ParseEntityClass(value string) (EntityClass, error) {
	switch EntityClass(strings.ToLower(value)) {
	case EntityClassApp:
		return EntityClassApp, nil
	case EntityClassDB:
		return EntityClassDB, nil
	case EntityClassOther:
		return EntityClassOther, nil
	default:
		return "", NewValidationError(fmt.Sprintf("invalid entity class '%s', only %s, %s and %s are supported",
			value, EntityClassApp, EntityClassDB, EntityClassOther), nil)
	}
}

// RetentionPolicy is the three-tier expiry policy for one entity.
//
// Day artifacts are kept unconditionally, newest first. Month keeps that many
// first-Sunday-of-month artifacts after the day tier, Year keeps that many
// first-Sunday-of-December artifacts. Day == 0 disables expiry altogether.
type RetentionPolicy struct {
	Day   int `yaml:"day" json:"day" mapstructure:"day"`
	Month int `yaml:"month" json:"month" mapstructure:"month"`
	Year  int `yaml:"year" json:"year" mapstructure:"year"`
}

// IsExpiryDisabled reports whether the policy bypasses expiry processing
func (p RetentionPolicy) IsExpiryDisabled() bool {
	return p.Day == 0
}

// Validate validates the RetentionPolicy
func (p RetentionPolicy) Validate() error {
	var errors ValidationErrors

	if p.Day < 0 {
		errors.Add("day", "day count cannot be negative", p.Day)
	}
	if p.Month < 0 {
		errors.Add("month", "month count cannot be negative", p.Month)
	}
	if p.Year < 0 {
		errors.Add("year", "year count cannot be negative", p.Year)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// String renders the policy as day/month/year
func (p RetentionPolicy) String() string {
	return fmt.Sprintf("day=%d month=%d year=%d", p.Day, p.Month, p.Year)
}

// ClassPolicy holds the defaults for one entity class together with the
// ISO weekdays on which scheduled expiry runs for that class
type ClassPolicy struct {
	RetentionPolicy `yaml:",inline" mapstructure:",squash"`
	Weekday         []int `yaml:"weekday" json:"weekday" mapstructure:"weekday"`
}

// RunsOn reports whether scheduled expiry for the class runs on the given ISO weekday
func (cp ClassPolicy) RunsOn(isoWeekday int) bool {
	for _, day := range cp.Weekday {
		if day == isoWeekday {
			return true
		}
	}
	return false
}

// Validate validates the ClassPolicy
func (cp ClassPolicy) Validate() error {
	var errors ValidationErrors

	if err := cp.RetentionPolicy.Validate(); err != nil {
		if validationErrs, ok := err.(ValidationErrors); ok {
			errors = append(errors, validationErrs...)
		}
	}

	for _, day := range cp.Weekday {
		if day < WeekdayMonday || day > WeekdaySunday {
			errors.Add("weekday", "weekday must be between 1 (Monday) and 7 (Sunday)", day)
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

func allWeekdays() []int {
	return []int{1, 2, 3, 4, 5, 6, 7}
}

// DefaultClassPolicies returns the built-in defaults per entity class
func DefaultClassPolicies() map[EntityClass]ClassPolicy {
	return map[EntityClass]ClassPolicy{
		EntityClassApp: {
			RetentionPolicy: RetentionPolicy{Day: 14, Month: 4, Year: 2},
			Weekday:         allWeekdays(),
		},
		EntityClassDB: {
			RetentionPolicy: RetentionPolicy{Day: 5, Month: 2, Year: 1},
			Weekday:         allWeekdays(),
		},
		// other entities are only expired when expire_other or the entity sets day
		EntityClassOther: {
			Weekday: allWeekdays(),
		},
	}
}

// ResolvePolicy merges an entity override onto its class default. A zero
// field in the override means "use the class default".
func ResolvePolicy(override, classDefault RetentionPolicy) RetentionPolicy {
	resolved := classDefault
	if override.Day != 0 {
		resolved.Day = override.Day
	}
	if override.Month != 0 {
		resolved.Month = override.Month
	}
	if override.Year != 0 {
		resolved.Year = override.Year
	}
	return resolved
}
