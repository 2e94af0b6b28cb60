package batchschema

import (
	"encoding/json"
	"testing"
)

func TestValidateBatchPayload(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"payload_version": "v1",
		"source": "iamsterdam",
		"records": [
			{"title": "Jazz at Bird", "start": "2026-09-12T19:30:00+02:00"},
			{"title": "Canal Market"}
		]
	}`)

	batch, err := ValidateBatchPayload(payload)
	if err != nil {
		t.Fatalf("ValidateBatchPayload: %v", err)
	}
	if batch.Source != "iamsterdam" {
		t.Fatalf("source = %q", batch.Source)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("records = %d, want 2", len(batch.Records))
	}
	if batch.Records[0]["title"] != "Jazz at Bird" {
		t.Fatalf("first record title = %v", batch.Records[0]["title"])
	}
}

func TestValidateBatchPayloadRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: ""},
		{name: "not json", payload: "not json"},
		{name: "trailing content", payload: `{"payload_version":"v1","source":"a","records":[]} extra`},
		{name: "wrong version", payload: `{"payload_version":"v2","source":"a","records":[]}`},
		{name: "missing source", payload: `{"payload_version":"v1","records":[]}`},
		{name: "blank source", payload: `{"payload_version":"v1","source":"  ","records":[]}`},
		{name: "records not array", payload: `{"payload_version":"v1","source":"a","records":{}}`},
		{name: "unknown field", payload: `{"payload_version":"v1","source":"a","records":[],"extra":1}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ValidateBatchPayload(json.RawMessage(tc.payload)); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
