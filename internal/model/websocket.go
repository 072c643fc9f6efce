package model

// Messages relayed to browser clients over the surface websocket
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypeToast    = "toast"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage represents a progress update for a surface's job
type WSProgressMessage struct {
	Type            string    `json:"type"`
	SurfaceID       string    `json:"surfaceId"`
	JobID           string    `json:"jobId"`
	Status          JobStatus `json:"status"`
	ProgressPercent int       `json:"progressPercent"`
	ETARemaining    *int      `json:"etaSecondsRemaining,omitempty"`
}

// WSCompleteMessage represents job completion with normalized results
type WSCompleteMessage struct {
	Type      string   `json:"type"`
	SurfaceID string   `json:"surfaceId"`
	JobID     string   `json:"jobId"`
	Results   []Result `json:"results"`
}

// WSErrorMessage represents a failed job
type WSErrorMessage struct {
	Type      string  `json:"type"`
	SurfaceID string  `json:"surfaceId"`
	JobID     string  `json:"jobId"`
	Error     WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WSToastMessage is a one-shot user-facing terminal notification
type WSToastMessage struct {
	Type      string `json:"type"`
	SurfaceID string `json:"surfaceId"`
	Kind      string `json:"kind"` // "success" or "error"
	Message   string `json:"message"`
}
