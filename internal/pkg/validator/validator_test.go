package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type probe struct {
	Type      string   `json:"type" validate:"required,ad_type"`
	Status    string   `json:"status" validate:"omitempty,ad_status"`
	Target    string   `json:"target_type" validate:"omitempty,target_type"`
	TimeStart string   `json:"time_start" validate:"omitempty,hhmm"`
	Days      []string `json:"days" validate:"omitempty,dive,weekday"`
}

func TestValidate_CustomTags(t *testing.T) {
	assert.Nil(t, Validate(probe{Type: "BANNER", Status: "ACTIVE", Target: "NEW_USERS", TimeStart: "09:30", Days: []string{"0", "6"}}))

	errs := Validate(probe{Type: "FLYER", Status: "LIVE", Target: "EVERYONE", TimeStart: "25:00", Days: []string{"7"}})
	assert.Contains(t, errs["type"], "Invalid ad type")
	assert.Contains(t, errs["status"], "Invalid status")
	assert.Contains(t, errs["target_type"], "Invalid target type")
	assert.Equal(t, "Invalid time of day, expected HH:MM", errs["time_start"])
	assert.Contains(t, errs, "days[0]")
}

func TestValidate_Required(t *testing.T) {
	errs := Validate(probe{})
	assert.Equal(t, "This field is required", errs["type"])
}

func TestParseClock(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"00:00", 0, true},
		{"09:05", 545, true},
		{"9:5", 545, true},
		{"23:59", 1439, true},
		{"24:00", 0, false},
		{"12", 0, false},
		{"ab:cd", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseClock(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.in)
		}
	}
}
