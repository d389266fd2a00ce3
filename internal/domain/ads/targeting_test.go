package ads

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(weekday time.Weekday, hour, minute int) time.Time {
	// 2024-06-09 is a Sunday
	return time.Date(2024, 6, 9+int(weekday), hour, minute, 0, 0, time.UTC)
}

func TestMatchesSchedule(t *testing.T) {
	office := &ScheduleConfig{Days: Weekdays{"2"}, TimeStart: "09:00", TimeEnd: "17:00"}
	overnight := &ScheduleConfig{TimeStart: "22:00", TimeEnd: "02:00"}
	fromNoon := &ScheduleConfig{TimeStart: "12:00"}
	untilNoon := &ScheduleConfig{TimeEnd: "12:00"}
	weekends := &ScheduleConfig{Days: Weekdays{"0", "6"}}

	tests := []struct {
		name string
		sc   *ScheduleConfig
		now  time.Time
		want bool
	}{
		{"no schedule", nil, at(time.Monday, 3, 0), true},
		{"tuesday inside window", office, at(time.Tuesday, 10, 0), true},
		{"tuesday at window start", office, at(time.Tuesday, 9, 0), true},
		{"tuesday at window end", office, at(time.Tuesday, 17, 0), true},
		{"tuesday evening", office, at(time.Tuesday, 20, 0), false},
		{"wednesday inside hours", office, at(time.Wednesday, 10, 0), false},
		{"start after end never matches late", overnight, at(time.Friday, 23, 0), false},
		{"start after end never matches early", overnight, at(time.Friday, 1, 30), false},
		{"start after end midday", overnight, at(time.Friday, 12, 0), false},
		{"only start set", fromNoon, at(time.Monday, 23, 59), false},
		{"only start set before start", fromNoon, at(time.Monday, 11, 59), false},
		{"only end set", untilNoon, at(time.Monday, 0, 0), false},
		{"only end set after end", untilNoon, at(time.Monday, 12, 1), false},
		{"days only saturday", weekends, at(time.Saturday, 4, 0), true},
		{"days only monday", weekends, at(time.Monday, 4, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesSchedule(tt.sc, tt.now))
		})
	}
}

func TestWeekdays_AcceptsNumbers(t *testing.T) {
	var sc ScheduleConfig
	require.NoError(t, json.Unmarshal([]byte(`{"days":[1,"3",5],"timeStart":"08:30"}`), &sc))
	assert.Equal(t, Weekdays{"1", "3", "5"}, sc.Days)
	assert.Equal(t, "08:30", sc.TimeStart)

	assert.Error(t, json.Unmarshal([]byte(`{"days":[true]}`), &sc))
}

func TestMatchesContext(t *testing.T) {
	minTotal, maxTotal := 50.0, 200.0
	dc := &DisplayConditions{
		Paths:        []string{"/cart", "/checkout"},
		CartContains: &CartContains{ProductIDs: []string{"p-1", "p-2"}},
		CartValue:    &CartValue{Min: &minTotal, Max: &maxTotal},
	}

	tests := []struct {
		name string
		dc   *DisplayConditions
		sc   *SelectionContext
		want bool
	}{
		{"no context", dc, nil, true},
		{"no conditions", nil, &SelectionContext{CurrentPath: "/"}, true},
		{"path listed, no cart", dc, &SelectionContext{CurrentPath: "/cart"}, true},
		{"path not listed", dc, &SelectionContext{CurrentPath: "/home"}, false},
		{
			"cart matches product and value",
			dc,
			&SelectionContext{CurrentPath: "/cart", CartItems: []CartItem{{ProductID: "p-2", Price: 30, Quantity: 2}}},
			true,
		},
		{
			"cart without listed product",
			dc,
			&SelectionContext{CartItems: []CartItem{{ProductID: "p-9", Price: 100, Quantity: 1}}},
			false,
		},
		{
			"cart below minimum",
			dc,
			&SelectionContext{CartItems: []CartItem{{ProductID: "p-1", Price: 10, Quantity: 1}}},
			false,
		},
		{
			"cart above maximum",
			dc,
			&SelectionContext{CartItems: []CartItem{{ProductID: "p-1", Price: 150, Quantity: 2}}},
			false,
		},
		{
			"unbounded maximum",
			&DisplayConditions{CartValue: &CartValue{Min: &minTotal}},
			&SelectionContext{CartItems: []CartItem{{ProductID: "x", Price: 1000, Quantity: 3}}},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchesContext(tt.dc, tt.sc))
		})
	}
}

func TestABHash(t *testing.T) {
	assert.Equal(t, int64(0), abHash(""))
	assert.Equal(t, int64(97), abHash("a"))
	assert.Equal(t, int64(97*31+98), abHash("ab"))

	// Long inputs wrap at 32 bits and stay non-negative
	h := abHash("a-very-long-user-identifier-that-overflows-hero")
	assert.GreaterOrEqual(t, h, int64(0))
	assert.LessOrEqual(t, h, int64(1)<<31)
	assert.Equal(t, h, abHash("a-very-long-user-identifier-that-overflows-hero"))
}

func TestResolveABTests_Anonymous(t *testing.T) {
	group := func(title, name string) Advertisement {
		ad := Advertisement{Title: title, IsAbTest: true}
		ad.AbTestGroup.String, ad.AbTestGroup.Valid = name, true
		return ad
	}
	ads := []Advertisement{
		group("A1", "a"),
		{Title: "plain"},
		group("B1", "b"),
		group("A2", "a"),
		group("B2", "b"),
		{Title: "untagged test", IsAbTest: true},
	}

	var asked []int
	out := resolveABTests(ads, "", func(n int) int {
		asked = append(asked, n)
		return 0
	})

	var titles []string
	for _, ad := range out {
		titles = append(titles, ad.Title)
	}
	assert.Equal(t, []string{"plain", "untagged test", "A1", "B1"}, titles)
	assert.Equal(t, []int{2, 2}, asked)
}

func TestApplyContextualScoring(t *testing.T) {
	ads := []Advertisement{
		{Title: "zero priority"},
		{Title: "Category Deal", Priority: 4},
	}
	ads[1].CategoryID.String, ads[1].CategoryID.Valid = "c-1", true

	applyContextualScoring(ads, &SelectionContext{CurrentCategoryID: "c-1", SearchQuery: "DEAL"})
	assert.Equal(t, 1, ads[0].Priority)
	assert.Equal(t, 4+5+3, ads[1].Priority)

	sortByPriority(ads)
	assert.Equal(t, "Category Deal", ads[0].Title)
}
