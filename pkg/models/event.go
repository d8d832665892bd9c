package models

import (
	"encoding/json"
	"time"
)

// LifecycleEvent is the workflow run state change announced by the execution service.
// EventType values are Run* names such as RunStarted or RunSucceeded.
type LifecycleEvent struct {
	EventType    string          `json:"EventType"`
	EventDetails json.RawMessage `json:"EventDetails,omitempty"`
	Timestamp    time.Time       `json:"Timestamp"`
}

// EventStatus is the status named by a Run* event type, e.g. Succeeded for RunSucceeded.
func EventStatus(eventType string) string {
	if len(eventType) > 3 && eventType[:3] == "Run" {
		return eventType[3:]
	}

	return eventType
}
