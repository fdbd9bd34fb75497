package stats

import (
	"math"
	"testing"
)

func TestComputeDiffs(t *testing.T) {
	current := YearStats{
		TotalTracks:          1250,
		TotalPlaytimeSeconds: 360000,
		TotalSessions:        60,
		LongestSession:       LongestSession{Count: 80},
	}
	previous := YearStats{
		TotalTracks:          1000,
		TotalPlaytimeSeconds: 300000,
		TotalSessions:        40,
		LongestSession:       LongestSession{Count: 64},
	}

	d := ComputeDiffs(current, previous)

	if d.TracksPercentage != 25 {
		t.Errorf("TracksPercentage = %v, want 25", d.TracksPercentage)
	}
	if d.PlaytimePercentage != 20 {
		t.Errorf("PlaytimePercentage = %v, want 20", d.PlaytimePercentage)
	}
	if d.SessionPercentage != 25 {
		t.Errorf("SessionPercentage = %v, want 25", d.SessionPercentage)
	}
	if d.TotalSessionsPercentage != 50 {
		t.Errorf("TotalSessionsPercentage = %v, want 50", d.TotalSessionsPercentage)
	}
}

func TestComputeDiffsZeroPrevious(t *testing.T) {
	current := YearStats{
		TotalTracks:          500,
		TotalPlaytimeSeconds: 120000,
		TotalSessions:        20,
		LongestSession:       LongestSession{Count: 30},
	}

	d := ComputeDiffs(current, YearStats{})

	if d != (Diffs{}) {
		t.Errorf("diffs against an empty year = %+v, want all zeros", d)
	}
}

func TestComputeDiffsNegative(t *testing.T) {
	current := YearStats{TotalTracks: 750}
	previous := YearStats{TotalTracks: 1000}

	d := ComputeDiffs(current, previous)

	if d.TracksPercentage != -25 {
		t.Errorf("TracksPercentage = %v, want -25", d.TracksPercentage)
	}
}

func TestComputeDiffsFinite(t *testing.T) {
	cases := []struct {
		name     string
		current  YearStats
		previous YearStats
	}{
		{"both zero", YearStats{}, YearStats{}},
		{"current zero", YearStats{}, YearStats{TotalTracks: 10, TotalSessions: 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := ComputeDiffs(tc.current, tc.previous)
			for name, v := range map[string]float64{
				"TracksPercentage":        d.TracksPercentage,
				"PlaytimePercentage":      d.PlaytimePercentage,
				"SessionPercentage":       d.SessionPercentage,
				"TotalSessionsPercentage": d.TotalSessionsPercentage,
			} {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Errorf("%s = %v, want finite", name, v)
				}
			}
		})
	}
}
