package backup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityClass(t *testing.T) {
	for _, value := range []string{"app", "DB", "Other"} {
		class, err := ParseEntityClass(value)
		require.NoError(t, err)
		assert.Contains(t, AllEntityClasses, class)
	}

	_, err := ParseEntityClass("image")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid entity class 'image'")
}

func TestRetentionPolicy_Validate(t *testing.T) {
	tests := []struct {
		name        string
		policy      RetentionPolicy
		expectError bool
	}{
		{name: "valid", policy: RetentionPolicy{Day: 14, Month: 4, Year: 2}},
		{name: "all zero", policy: RetentionPolicy{}},
		{name: "negative day", policy: RetentionPolicy{Day: -1}, expectError: true},
		{name: "negative month", policy: RetentionPolicy{Day: 1, Month: -2}, expectError: true},
		{name: "negative year", policy: RetentionPolicy{Day: 1, Year: -3}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetentionPolicy_IsExpiryDisabled(t *testing.T) {
	assert.True(t, RetentionPolicy{Month: 4, Year: 2}.IsExpiryDisabled())
	assert.False(t, RetentionPolicy{Day: 1}.IsExpiryDisabled())
	assert.Equal(t, "day=5 month=2 year=1", RetentionPolicy{Day: 5, Month: 2, Year: 1}.String())
}

func TestClassPolicy_RunsOn(t *testing.T) {
	cp := ClassPolicy{Weekday: []int{1, 7}}

	assert.True(t, cp.RunsOn(1))
	assert.True(t, cp.RunsOn(7))
	assert.False(t, cp.RunsOn(3))
	assert.False(t, ClassPolicy{}.RunsOn(1))
}

func TestClassPolicy_Validate(t *testing.T) {
	assert.NoError(t, ClassPolicy{RetentionPolicy: RetentionPolicy{Day: 1}, Weekday: []int{1, 2}}.Validate())

	err := ClassPolicy{RetentionPolicy: RetentionPolicy{Day: -1}, Weekday: []int{0, 8}}.Validate()
	require.Error(t, err)

	validationErrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, validationErrs, 3)
}

func TestResolvePolicy(t *testing.T) {
	classDefault := RetentionPolicy{Day: 14, Month: 4, Year: 2}

	tests := []struct {
		name     string
		override RetentionPolicy
		want     RetentionPolicy
	}{
		{name: "no override", override: RetentionPolicy{}, want: classDefault},
		{name: "day only", override: RetentionPolicy{Day: 7}, want: RetentionPolicy{Day: 7, Month: 4, Year: 2}},
		{name: "full override", override: RetentionPolicy{Day: 1, Month: 1, Year: 1}, want: RetentionPolicy{Day: 1, Month: 1, Year: 1}},
		{name: "month and year", override: RetentionPolicy{Month: 12, Year: 5}, want: RetentionPolicy{Day: 14, Month: 12, Year: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolvePolicy(tt.override, classDefault))
		})
	}
}

func TestDefaultClassPolicies(t *testing.T) {
	defaults := DefaultClassPolicies()

	require.Len(t, defaults, len(AllEntityClasses))
	for _, class := range AllEntityClasses {
		cp, ok := defaults[class]
		require.True(t, ok, class)
		assert.NoError(t, cp.Validate())
		assert.Len(t, cp.Weekday, 7)
	}

	assert.Equal(t, RetentionPolicy{Day: 14, Month: 4, Year: 2}, defaults[EntityClassApp].RetentionPolicy)
	assert.Equal(t, RetentionPolicy{Day: 5, Month: 2, Year: 1}, defaults[EntityClassDB].RetentionPolicy)
	assert.True(t, defaults[EntityClassOther].IsExpiryDisabled())
}
