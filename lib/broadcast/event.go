package broadcast

import (
	"fmt"

	"github.com/deploykit/models"
)

// EventType distinguishes the two kinds of live events.
type EventType string

const (
	EventLog    EventType = "log"
	EventStatus EventType = "status"
)

// Event is pushed to every subscriber of a deployment.
type Event struct {
	Type         EventType `json:"event"`
	DeploymentID uint      `json:"deploymentId"`
	Log          string    `json:"log,omitempty"`
	Status       string    `json:"status,omitempty"`
}

// Final reports whether evt announces a terminal status. Nothing follows it.
func (e Event) Final() bool {
	return e.Type == EventStatus && models.DeploymentStatus(e.Status).Terminal()
}

// Publisher accepts events for fan-out. Publish must never block the caller.
type Publisher interface {
	Publish(evt Event)
}

// LogEvent wraps an output chunk.
func LogEvent(deploymentID uint, chunk string) Event {
	return Event{Type: EventLog, DeploymentID: deploymentID, Log: chunk}
}

// StatusEvent announces a status change.
func StatusEvent(deploymentID uint, status string) Event {
	return Event{Type: EventStatus, DeploymentID: deploymentID, Status: status}
}

// Room is the channel name subscribers of a deployment join.
func Room(deploymentID uint) string {
	return fmt.Sprintf("deployment-%d", deploymentID)
}
