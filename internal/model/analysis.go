package model

// Transcript is the output of speech transcription
type Transcript struct {
	Text     string   `json:"text"`
	Language string   `json:"language,omitempty"`
	Duration *float64 `json:"duration,omitempty"`
}

// TrackSuggestion is one song proposed for a video
type TrackSuggestion struct {
	Song   string `json:"song"`
	Artist string `json:"artist"`
	Genre  string `json:"genre,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// VibeAnalysis is the parsed LLM response
type VibeAnalysis struct {
	VibeRead string            `json:"vibe_read"`
	Tracks   []TrackSuggestion `json:"tracks"`
}

// AnalyzeResult is the terminal payload of an analyze job
type AnalyzeResult struct {
	Transcript string         `json:"transcript"`
	VibeRead   string         `json:"vibe_read"`
	Tracks     []CatalogTrack `json:"tracks"`
	Duration   *float64       `json:"duration"`
}

// CatalogTrack is a suggestion resolved against the music catalog
type CatalogTrack struct {
	Name     string  `json:"name"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album"`
	AlbumArt *string `json:"album_art"`
	URL      string  `json:"url"`
	URI      string  `json:"uri"`
	Genre    string  `json:"genre"`
	Reason   string  `json:"reason"`
}
