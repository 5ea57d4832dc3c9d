package domain

// Broadcast event names sent to display clients.
const (
	EventInitialData    = "initialData"
	EventDataUpdate     = "dataUpdate"
	EventSettingsUpdate = "settingsUpdate"
	EventClientCount    = "clientCount"
)

// IsReservedEvent reports whether name is owned by the state channel and
// therefore unavailable for ephemeral broadcasts.
func IsReservedEvent(name string) bool {
	switch name {
	case EventInitialData, EventDataUpdate, EventSettingsUpdate, EventClientCount:
		return true
	default:
		return false
	}
}

// StatePublisher fans a state change out to every connected display client.
type StatePublisher interface {
	Publish(event string, state *State)
}
