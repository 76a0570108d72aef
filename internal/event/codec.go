package event

import (
	"encoding/json"
	"fmt"
)

// MarshalPayload serializes a typed event for the event log. The encoding is
// the typed struct itself, not the inbound wire format, so replay does not
// depend on gateway JSON staying stable.
func MarshalPayload(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", evt.EventType(), err)
	}
	return data, nil
}

// UnmarshalPayload decodes an event-log payload back into its typed event.
func UnmarshalPayload(eventType EventType, data []byte) (Event, error) {
	var evt Event
	switch eventType {
	case EventTypeGroupSubmission:
		evt = &GroupSubmission{}
	case EventTypePriceUpdate:
		evt = &PriceUpdate{}
	case EventTypeFeeUpdate:
		evt = &FeeUpdate{}
	case EventTypeManagerUpdate:
		evt = &ManagerUpdate{}
	default:
		return nil, fmt.Errorf("unknown event type %d", eventType)
	}
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", eventType, err)
	}
	return evt, nil
}

// EventTypeFromString maps the stored event_type column back to the
// discriminator.
func EventTypeFromString(s string) EventType {
	switch s {
	case "GroupSubmission":
		return EventTypeGroupSubmission
	case "PriceUpdate":
		return EventTypePriceUpdate
	case "FeeUpdate":
		return EventTypeFeeUpdate
	case "ManagerUpdate":
		return EventTypeManagerUpdate
	default:
		return EventTypeUnknown
	}
}
