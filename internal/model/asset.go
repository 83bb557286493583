package model

// AssetKind selects the directory and naming rule of a cached file
type AssetKind string

const (
	AssetKindVideo        AssetKind = "video"
	AssetKindInstrumental AssetKind = "instrumental"
	AssetKindExport       AssetKind = "export"
)

// AssetOrigin tells whether an audio asset was reused or fetched by the job
type AssetOrigin string

const (
	AssetOriginCached AssetOrigin = "cached"
	AssetOriginFresh  AssetOrigin = "fresh"
)

// AudioAsset is an instrumental file on disk. Never rewritten in place.
type AudioAsset struct {
	ID     string      `json:"id"`
	Path   string      `json:"-"`
	Origin AssetOrigin `json:"origin"`
}

// VideoAsset is an uploaded source video
type VideoAsset struct {
	ID   string `json:"id"`
	Path string `json:"-"`
}

// ExportArtifact is a finished, mixed video awaiting its single download
type ExportArtifact struct {
	ID   string `json:"id"`
	Path string `json:"-"`
}

// MediaInfo holds the facts MediaProbe extracts from a file
type MediaInfo struct {
	DurationMs int64 `json:"durationMs"`
	HasAudio   bool  `json:"hasAudio"`
}

// MixRequest is the input of one export mix
type MixRequest struct {
	Video       VideoAsset
	Audio       AudioAsset
	StartMs     int64
	VideoVolume float64
	MusicVolume float64
}
