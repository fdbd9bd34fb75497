package stats

// ComputeDiffs computes the year-over-year percentage changes between
// two aggregation results. Percentages are plain floating point;
// rounding to display precision is the client's concern.
func ComputeDiffs(current, previous YearStats) Diffs {
	return Diffs{
		TracksPercentage: pctChange(
			float64(current.TotalTracks), float64(previous.TotalTracks)),
		PlaytimePercentage: pctChange(
			float64(current.TotalPlaytimeSeconds), float64(previous.TotalPlaytimeSeconds)),
		SessionPercentage: pctChange(
			float64(current.LongestSession.Count), float64(previous.LongestSession.Count)),
		TotalSessionsPercentage: pctChange(
			float64(current.TotalSessions), float64(previous.TotalSessions)),
	}
}

// pctChange returns (current - previous) / previous * 100. A zero
// previous value yields 0 so non-finite values never enter the
// response contract.
func pctChange(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}
