package model

// WebSocket message types
const (
	WSMessageTypeView     = "view"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSViewMessage carries the session view after a transition
type WSViewMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"deviceId"`
	View     View   `json:"view"`
}

// WSCompleteMessage is sent once a session reaches its terminal phase
type WSCompleteMessage struct {
	Type     string      `json:"type"`
	DeviceID string      `json:"deviceId"`
	Flow     Flow        `json:"flow"`
	Summary  interface{} `json:"summary"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type     string  `json:"type"`
	DeviceID string  `json:"deviceId"`
	Error    WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
