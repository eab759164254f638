/*
mapper.go - Typed provider response classification

PURPOSE:
  The provider's JSON is not stable: across endpoints and versions the
  success marker has been seen as status="success", Status="successful"
  and success=true, and failures as status="fail"/"failed" or a bare
  error field. Rather than letting those quirks leak into the purchase
  state machine, this file holds ONE explicit table of accepted
  signals. Anything the tables cannot classify - including a body
  matching BOTH tables at once - is ambiguous, the never-overcharge
  path.

ADDING A PROVIDER QUIRK:
  Extend successSignals/failureSignals. Nothing else changes.
*/
package purchase

import "encoding/json"

// signal is one accepted response marker: a field name plus either a
// string value or a boolean value to match.
type signal struct {
	field string
	// str matches when the field is a string equal to it; empty means
	// match on the boolean value instead.
	str string
	b   bool
}

// The explicit signal tables. Order matters only for reference/message
// extraction, not classification.
var (
	successSignals = []signal{
		{field: "status", str: "success"},
		{field: "Status", str: "successful"},
		{field: "success", b: true},
	}

	failureSignals = []signal{
		{field: "status", str: "fail"},
		{field: "status", str: "failed"},
		{field: "Status", str: "failed"},
		{field: "success", b: false},
		{field: "error", str: "*"}, // any non-empty error field
	}

	referenceFields = []string{"orderid", "api_response", "reference", "order_id"}
	messageFields   = []string{"message", "Message", "error", "detail"}
)

// Classify maps a raw provider body onto an Outcome. A body that is
// not valid JSON, or valid JSON matching neither table, is ambiguous.
func Classify(raw []byte) *Result {
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return &Result{
			Outcome: OutcomeAmbiguous,
			Message: "provider returned non-JSON response",
			Raw:     synthesizeRaw(raw),
		}
	}

	res := &Result{
		Raw:       json.RawMessage(raw),
		Reference: firstString(body, referenceFields),
		Message:   firstString(body, messageFields),
	}

	succeeded := matchesAny(body, successSignals)
	failed := matchesAny(body, failureSignals)
	switch {
	case succeeded && failed:
		// A body asserting both markers cannot be trusted either way.
		res.Outcome = OutcomeAmbiguous
		res.Message = "conflicting provider status markers"
	case succeeded:
		res.Outcome = OutcomeSuccess
	case failed:
		res.Outcome = OutcomeFailure
	default:
		res.Outcome = OutcomeAmbiguous
		if res.Message == "" {
			res.Message = "unrecognized provider response shape"
		}
	}
	return res
}

func matchesAny(body map[string]any, signals []signal) bool {
	for _, sig := range signals {
		v, ok := body[sig.field]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if sig.str == "*" && val != "" {
				return true
			}
			if sig.str != "" && val == sig.str {
				return true
			}
		case bool:
			if sig.str == "" && val == sig.b {
				return true
			}
		case map[string]any:
			// An "error" object counts as a structured error.
			if sig.str == "*" && len(val) > 0 {
				return true
			}
		}
	}
	return false
}

func firstString(body map[string]any, fields []string) string {
	for _, f := range fields {
		if v, ok := body[f].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// synthesizeRaw wraps a non-JSON body so it can still be stored in
// the entry's provider_response column as valid JSON.
func synthesizeRaw(raw []byte) json.RawMessage {
	wrapped, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return wrapped
}
