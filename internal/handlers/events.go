package handlers

import corev1 "k8s.io/api/core/v1"

func convertEvents(raw []corev1.Event) []Event {
	out := make([]Event, len(raw))
	for i, e := range raw {
		out[i] = Event{
			Reason:    e.Reason,
			Message:   e.Message,
			Type:      e.Type,
			Timestamp: e.LastTimestamp.Time,
		}
	}
	return out
}
