package session

import "strings"

// State is the application state a response was classified into.
type State string

const (
	StateMaintenance    State = "maintenance"
	StateSessionTimeout State = "session_timeout"
	StateSuccess        State = "success"
)

const (
	// MaintenanceMarker appears on the portal's planned-outage page.
	MaintenanceMarker = "システム停止中"
	// TimeoutMarker appears when the server dropped the session.
	TimeoutMarker = "セッションタイムアウト"
)

// Classify maps response text to a State. Maintenance wins over timeout.
func Classify(text string) State {
	if strings.Contains(text, MaintenanceMarker) {
		return StateMaintenance
	}
	if strings.Contains(text, TimeoutMarker) {
		return StateSessionTimeout
	}
	return StateSuccess
}
