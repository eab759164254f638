package purchase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/geovend/wallet-engine/purchase"
)

// =============================================================================
// RESPONSE CLASSIFICATION
// =============================================================================

func TestClassify_KnownShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want purchase.Outcome
		ref  string
		msg  string
	}{
		{
			name: "lowercase status success",
			raw:  `{"status":"success","orderid":"ORD-1","message":"Data delivered"}`,
			want: purchase.OutcomeSuccess,
			ref:  "ORD-1",
			msg:  "Data delivered",
		},
		{
			name: "capitalized Status successful",
			raw:  `{"Status":"successful","api_response":"TX-9"}`,
			want: purchase.OutcomeSuccess,
			ref:  "TX-9",
		},
		{
			name: "boolean success flag",
			raw:  `{"success":true,"reference":"REF-3"}`,
			want: purchase.OutcomeSuccess,
			ref:  "REF-3",
		},
		{
			name: "status fail",
			raw:  `{"status":"fail","message":"Insufficient provider wallet"}`,
			want: purchase.OutcomeFailure,
			msg:  "Insufficient provider wallet",
		},
		{
			name: "status failed",
			raw:  `{"status":"failed"}`,
			want: purchase.OutcomeFailure,
		},
		{
			name: "boolean success false",
			raw:  `{"success":false,"detail":"Invalid plan"}`,
			want: purchase.OutcomeFailure,
			msg:  "Invalid plan",
		},
		{
			name: "bare error string",
			raw:  `{"error":"Invalid phone number"}`,
			want: purchase.OutcomeFailure,
			msg:  "Invalid phone number",
		},
		{
			name: "error object",
			raw:  `{"error":{"code":400}}`,
			want: purchase.OutcomeFailure,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := purchase.Classify([]byte(tc.raw))
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, tc.ref, res.Reference)
			assert.Equal(t, tc.msg, res.Message)
		})
	}
}

func TestClassify_AmbiguousShapes(t *testing.T) {
	// Anything outside the signal tables must land on ambiguous, never
	// on success or failure.
	cases := []struct {
		name string
		raw  string
	}{
		{"html error page", `<html><body>504 Gateway Timeout</body></html>`},
		{"empty body", ``},
		{"unknown status value", `{"status":"processing"}`},
		{"unrelated json", `{"balance":1200}`},
		{"truncated json", `{"status":"succ`},
		{"conflicting markers", `{"status":"fail","success":true}`},
		{"conflicting markers reversed", `{"status":"success","success":false}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := purchase.Classify([]byte(tc.raw))
			assert.Equal(t, purchase.OutcomeAmbiguous, res.Outcome)
			assert.NotEmpty(t, res.Message)
			assert.NotEmpty(t, res.Raw, "raw must be preserved for reconciliation")
		})
	}
}

func TestClassify_NonJSONRawIsWrapped(t *testing.T) {
	// A non-JSON body must still be storable as JSON on the entry.
	res := purchase.Classify([]byte(`<html>boom</html>`))

	assert.Equal(t, purchase.OutcomeAmbiguous, res.Outcome)
	assert.JSONEq(t, `{"raw":"<html>boom</html>"}`, string(res.Raw))
}
