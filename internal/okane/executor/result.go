package executor

import "encoding/json"

// Failure reasons are part of the wire contract with the reply-synthesis
// round; they are stable strings, not free text.
const (
	ReasonMissingArgument  = "missing_argument"
	ReasonInvalidArgument  = "invalid_argument"
	ReasonUnknownOperation = "unknown_operation"
	ReasonInvalidDate      = "invalid_date"
	ReasonInvalidRange     = "invalid_range"
	ReasonNotFound         = "not_found"
	ReasonNoData           = "no_data"
	ReasonStorageError     = "storage_error"
	ReasonChartError       = "chart_error"
)

// Result is the tagged outcome of one operation: either a success payload or
// a failure reason, never both.  Payloads contain only JSON-serializable
// scalars, maps, and slices.
type Result struct {
	// RequestID correlates the result with the originating Request.
	RequestID string
	// Name is the capability that produced this result.
	Name string

	payload map[string]any
	reason  string
}

// Success builds a successful result carrying payload.
func Success(requestID, name string, payload map[string]any) Result {
	return Result{RequestID: requestID, Name: name, payload: payload}
}

// Failure builds a failed result carrying a stable reason string.
func Failure(requestID, name, reason string) Result {
	return Result{RequestID: requestID, Name: name, reason: reason}
}

// Failed reports whether the result is a failure.
func (r Result) Failed() bool {
	return r.reason != ""
}

// Reason returns the failure reason, or "" for a success.
func (r Result) Reason() string {
	return r.reason
}

// Payload returns the success payload, or nil for a failure.
func (r Result) Payload() map[string]any {
	return r.payload
}

// ChartURL returns the chartUrl payload entry when present.
func (r Result) ChartURL() string {
	if r.payload == nil {
		return ""
	}
	if url, ok := r.payload["chartUrl"].(string); ok {
		return url
	}
	return ""
}

// JSON renders the result as the JSON document fed back to the model:
// {"status":"success","data":{...}} or {"status":"failure","reason":"..."}.
func (r Result) JSON() string {
	var doc map[string]any
	if r.Failed() {
		doc = map[string]any{"status": "failure", "reason": r.reason}
	} else {
		doc = map[string]any{"status": "success", "data": r.payload}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		// Payloads are built from plain scalars; marshaling cannot fail
		// unless a programming error introduced an unserializable value.
		return `{"status":"failure","reason":"internal_error"}`
	}
	return string(data)
}
