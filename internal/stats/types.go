// Package stats implements the year-in-review aggregation set over the
// Rekordbox session-history schema, the year-over-year diff calculator
// and the response assembler. The field names in the JSON contract are
// fixed; clients render them directly.
package stats

// Filter selects the target year and controls the placeholder-name
// exclusion policy. Exclusions apply only to the top-N lists, never to
// raw totals.
type Filter struct {
	Year                 string
	IncludeUnknownArtist bool
	IncludeUnknownGenre  bool
}

// TrackRank is one entry of the top-tracks list.
type TrackRank struct {
	Title  string `json:"Title"`
	Artist string `json:"Artist"`
	Count  int    `json:"count"`
}

// NameRank is one entry of the top-artists or top-genres list.
type NameRank struct {
	Name  string `json:"Name"`
	Count int    `json:"count"`
}

// BPMRank is one entry of the top-BPM list. BPM carries the real tempo;
// the schema stores it multiplied by 100.
type BPMRank struct {
	BPM   float64 `json:"BPM"`
	Count int     `json:"count"`
}

// LibraryGrowth describes library size at year end and tracks added
// within the year. The two figures come from independent queries, not a
// running delta.
type LibraryGrowth struct {
	Total int `json:"total"`
	Added int `json:"added"`
}

// LongestSession describes the session with the most play events in
// the year. DurationSeconds is omitted when the year has no sessions.
type LongestSession struct {
	Date            string `json:"date"`
	Count           int    `json:"count"`
	DurationSeconds *int64 `json:"durationSeconds,omitempty"`
}

// BusiestMonth is the month ("YYYY-MM") with the most play events.
type BusiestMonth struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// YearStats is the full aggregation result for one year. All fields are
// always present; the top-N slices are empty, never null.
type YearStats struct {
	TotalTracks          int            `json:"totalTracks"`
	TotalPlaytimeSeconds int64          `json:"totalPlaytimeSeconds"`
	TotalSessions        int            `json:"totalSessions"`
	LibraryGrowth        LibraryGrowth  `json:"libraryGrowth"`
	LongestSession       LongestSession `json:"longestSession"`
	BusiestMonth         BusiestMonth   `json:"busiestMonth"`
	TopTracks            []TrackRank    `json:"topTracks"`
	TopArtists           []NameRank     `json:"topArtists"`
	TopGenres            []NameRank     `json:"topGenres"`
	TopBPMs              []BPMRank      `json:"topBPMs"`
}

// Diffs holds the year-over-year percentage changes. SessionPercentage
// compares the longest session's track count; TotalSessionsPercentage
// compares session counts.
type Diffs struct {
	TracksPercentage        float64 `json:"tracksPercentage"`
	PlaytimePercentage      float64 `json:"playtimePercentage"`
	SessionPercentage       float64 `json:"sessionPercentage"`
	TotalSessionsPercentage float64 `json:"totalSessionsPercentage"`
}

// Comparison pairs a prior year's stats with the computed diffs.
type Comparison struct {
	Year  string    `json:"year"`
	Stats YearStats `json:"stats"`
	Diffs Diffs     `json:"diffs"`
}

// StatsResponse is the complete response contract. Comparison is
// omitted when no comparison year was requested.
type StatsResponse struct {
	Year       string      `json:"year"`
	Stats      YearStats   `json:"stats"`
	Comparison *Comparison `json:"comparison,omitempty"`
}
