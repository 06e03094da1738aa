// Package control implements the Control Surface of spec §4.7: a
// persistent, bidirectional, message-framed JSON protocol. Framed with
// gorilla/websocket (SPEC_FULL §4.7) rather than a hand-rolled
// length-prefix wire format — a websocket connection already gives
// message boundaries, which is exactly what "message-framed" requires.
package control

import "fmt"

// Request is one control-protocol message: a JSON object carrying `op`
// plus whichever fields that verb uses (spec §4.7).
type Request struct {
	Op        string `json:"op"`
	Pipeline  string `json:"pipeline,omitempty"`  // RUN
	Label     string `json:"label,omitempty"`     // STATUS, DATA, CLEANUP
	TaskLabel string `json:"task_label,omitempty"` // LOGS, EVENTS
	Query     string `json:"query,omitempty"`     // SHOW
	DB        bool   `json:"db,omitempty"`        // CLEANUP
	FS        bool   `json:"fs,omitempty"`        // CLEANUP
	Follow    bool   `json:"follow,omitempty"`    // LOGS
}

// Response is one control-protocol reply. Exactly one of the two shapes
// spec §4.7 names: success carries Data, failure carries Response as
// the error message with Status "ERROR".
type Response struct {
	Success  bool   `json:"success"`
	Status   string `json:"status,omitempty"`
	Response string `json:"response,omitempty"`
	Data     any    `json:"data,omitempty"`
}

func ok(data any) Response {
	return Response{Success: true, Data: data}
}

func fail(format string, args ...any) Response {
	return Response{Status: "ERROR", Response: fmt.Sprintf(format, args...)}
}
