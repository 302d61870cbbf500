package livesync

import "github.com/nfrund/weatherdash/internal/pubsub"

// RecordsChanged is published after every change to a mount's list.
type RecordsChanged struct {
	Version uint64 `json:"version"`
	Count   int    `json:"count"`
	// Cause is "fetch" or the push event kind that changed the list.
	Cause string `json:"cause"`
}

// Level of a Notification.
type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// Notification is a transient message for the user of a mount.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

var (
	TopicRecordsChanged = pubsub.NewEvent[RecordsChanged]("dashboard.records.changed")
	TopicNotifications  = pubsub.NewEvent[Notification]("dashboard.notifications")
)
