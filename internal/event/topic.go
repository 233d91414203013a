package event

import "strings"

// Topic is a hierarchical event type in dot notation, e.g.
// "processing.complete" or "change.recorded".
//
// Subscription patterns may use wildcards: "*" matches exactly one
// segment, "**" matches zero or more segments.
type Topic string

// Topics published by the engine.
const (
	TopicProcessingStart    Topic = "processing.start"
	TopicProcessingProgress Topic = "processing.progress"
	TopicProcessingComplete Topic = "processing.complete"
	TopicProcessingError    Topic = "processing.error"
	TopicChangeRecorded     Topic = "change.recorded"
	TopicClusterCreated     Topic = "cluster.created"
	TopicConflictDetected   Topic = "conflict.detected"
	TopicConflictResolved   Topic = "conflict.resolved"
	TopicSessionStarted     Topic = "session.started"
	TopicSessionEnded       Topic = "session.ended"
)

// Segments splits the topic into its dot-separated parts.
func (t Topic) Segments() []string {
	if t == "" {
		return nil
	}
	return strings.Split(string(t), ".")
}

// IsPattern reports whether the topic contains wildcards.
func (t Topic) IsPattern() bool {
	for _, seg := range t.Segments() {
		if seg == "*" || seg == "**" {
			return true
		}
	}
	return false
}

// Match reports whether a concrete topic matches a pattern.
func Match(pattern, topic Topic) bool {
	return matchSegments(pattern.Segments(), topic.Segments())
}

func matchSegments(pattern, topic []string) bool {
	if len(pattern) == 0 {
		return len(topic) == 0
	}
	switch pattern[0] {
	case "**":
		// Try consuming zero segments, then one at a time.
		for i := 0; i <= len(topic); i++ {
			if matchSegments(pattern[1:], topic[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(topic) > 0 && matchSegments(pattern[1:], topic[1:])
	default:
		return len(topic) > 0 && pattern[0] == topic[0] && matchSegments(pattern[1:], topic[1:])
	}
}
