package model

// FindInstrumentalRequest is the body of POST /api/instrumentals/search
type FindInstrumentalRequest struct {
	Song       string `json:"song" validate:"required,notblank,max=200"`
	Artist     string `json:"artist" validate:"omitempty,max=200"`
	DurationMs *int64 `json:"duration_ms" validate:"omitempty,min=0"`
}

// FindInstrumentalResult is the terminal payload of a find-instrumental job
type FindInstrumentalResult struct {
	InstrumentalID string `json:"instrumental_id"`
	DurationMs     int64  `json:"duration_ms"`
}

// ExportRequest is the body of POST /api/exports
type ExportRequest struct {
	VideoID        string   `json:"video_id" validate:"required,hexid"`
	Song           string   `json:"song" validate:"required,notblank,max=200"`
	Artist         string   `json:"artist" validate:"omitempty,max=200"`
	StartMs        int64    `json:"start_ms" validate:"min=0"`
	VideoVolume    *float64 `json:"video_volume" validate:"omitempty,min=0,max=4"`
	MusicVolume    *float64 `json:"music_volume" validate:"omitempty,min=0,max=4"`
	InstrumentalID string   `json:"instrumental_id" validate:"omitempty,hexid"`
}

// ExportResult is the terminal payload of an export job
type ExportResult struct {
	ExportID string `json:"export_id"`
}

// SubmitVideoResponse is returned after a video upload
type SubmitVideoResponse struct {
	VideoID string `json:"video_id"`
}

// RerollRequest is the body of POST /api/analyze/reroll
type RerollRequest struct {
	Transcript string   `json:"transcript" validate:"required,notblank"`
	Duration   *float64 `json:"duration" validate:"omitempty,min=0"`
	Exclude    []string `json:"exclude" validate:"omitempty,max=50,dive,max=300"`
}

// RerollResponse carries a fresh set of catalog matches
type RerollResponse struct {
	Tracks []CatalogTrack `json:"tracks"`
}
