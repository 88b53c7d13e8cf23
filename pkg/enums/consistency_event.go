package enums

import "fmt"

// ConsistencyEvent names the signals that feed a membership's rolling
// consistency metrics. The aggregate is updated incrementally per event,
// never recomputed from scratch on the hot path.
type ConsistencyEvent string

const (
	ConsistencyEventProjectCompleted ConsistencyEvent = "project_completed"
	ConsistencyEventPeerFeedback     ConsistencyEvent = "peer_feedback"
)

var validConsistencyEvents = []ConsistencyEvent{
	ConsistencyEventProjectCompleted,
	ConsistencyEventPeerFeedback,
}

// IsValid reports whether the value is a known ConsistencyEvent.
func (e ConsistencyEvent) IsValid() bool {
	for _, candidate := range validConsistencyEvents {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseConsistencyEvent converts raw input into a ConsistencyEvent.
func ParseConsistencyEvent(value string) (ConsistencyEvent, error) {
	for _, candidate := range validConsistencyEvents {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid consistency event %q", value)
}
