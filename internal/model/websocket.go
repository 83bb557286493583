package model

// WebSocket message types
const (
	WSMessageTypeEvent = "event"
	WSMessageTypePing  = "ping"
	WSMessageTypePong  = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSEventMessage wraps one progress event for websocket subscribers
type WSEventMessage struct {
	Type  string      `json:"type"`
	JobID string      `json:"jobId"`
	Seq   int         `json:"seq"`
	Event interface{} `json:"event"`
}
