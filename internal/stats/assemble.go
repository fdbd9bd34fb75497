package stats

// Assemble merges the aggregation fragments into the response contract.
// Every stats field is present even when the underlying rows were
// empty, so clients never null-check.
func Assemble(year string, current YearStats, comparison *Comparison) StatsResponse {
	normalize(&current)
	if comparison != nil {
		normalize(&comparison.Stats)
	}
	return StatsResponse{
		Year:       year,
		Stats:      current,
		Comparison: comparison,
	}
}

// normalize replaces nil top-N slices with empty ones.
func normalize(s *YearStats) {
	if s.TopTracks == nil {
		s.TopTracks = []TrackRank{}
	}
	if s.TopArtists == nil {
		s.TopArtists = []NameRank{}
	}
	if s.TopGenres == nil {
		s.TopGenres = []NameRank{}
	}
	if s.TopBPMs == nil {
		s.TopBPMs = []BPMRank{}
	}
}
