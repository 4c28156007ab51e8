package service

// EventType defines the type of event
type EventType string

const (
	EventRecordCreated            EventType = "record_created"
	EventRecordUpdated            EventType = "record_updated"
	EventRecordDeleted            EventType = "record_deleted"
	EventDesignApplied            EventType = "design_applied"
	EventDeploymentCreated        EventType = "deployment_created"
	EventDeploymentUpdated        EventType = "deployment_updated"
	EventDeploymentDecommissioned EventType = "deployment_decommissioned"
	EventDiscoveryCompleted       EventType = "discovery_completed"
	EventDesignReloaded           EventType = "design_reloaded"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// EventBus allows publishing and subscribing to events
type EventBus struct {
	subscribers []chan<- Event
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make([]chan<- Event, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (eb *EventBus) Subscribe(ch chan<- Event) {
	eb.subscribers = append(eb.subscribers, ch)
}

// Unsubscribe removes a subscriber
func (eb *EventBus) Unsubscribe(ch chan<- Event) {
	for i, sub := range eb.subscribers {
		if sub == ch {
			eb.subscribers = append(eb.subscribers[:i], eb.subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	for _, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
