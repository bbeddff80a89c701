package logging

import (
	"sort"
	"testing"
)

func TestMaskField(t *testing.T) {
	cases := []struct {
		key    string
		value  string
		masked bool
	}{
		{"request_id", "req-1", false},
		{"vault", "0x10", false},
		{"batch_id", "0xabc", false},
		{"Method", "POST", false},
		{"authorization", "Bearer token", true},
		{"relayer_key", "secret", true},
		{"x-operator-token", "op-1", true},
	}
	for _, tc := range cases {
		attr := MaskField(tc.key, tc.value)
		got := attr.Value.String()
		if tc.masked && got != RedactedValue {
			t.Fatalf("MaskField(%q) = %q, want masked", tc.key, got)
		}
		if !tc.masked && got != tc.value {
			t.Fatalf("MaskField(%q) = %q, want %q", tc.key, got, tc.value)
		}
		if attr.Key != tc.key {
			t.Fatalf("MaskField(%q) rewrote the key to %q", tc.key, attr.Key)
		}
	}
}

func TestMaskFieldLeavesEmptyValues(t *testing.T) {
	attr := MaskField("authorization", "")
	if got := attr.Value.String(); got != "" {
		t.Fatalf("empty value masked to %q", got)
	}
}

func TestMaskValue(t *testing.T) {
	if got := MaskValue("secret"); got != RedactedValue {
		t.Fatalf("MaskValue = %q, want %q", got, RedactedValue)
	}
	if got := MaskValue("  "); got != "  " {
		t.Fatalf("whitespace value masked to %q", got)
	}
}

func TestRedactionAllowlist(t *testing.T) {
	keys := RedactionAllowlist()
	if !sort.StringsAreSorted(keys) {
		t.Fatalf("allowlist not sorted: %v", keys)
	}
	for _, key := range []string{"service", "env", "status", "asset", "error"} {
		if !IsAllowlisted(key) {
			t.Fatalf("%q should be allowlisted", key)
		}
	}
	if IsAllowlisted("authorization") {
		t.Fatal("authorization must never be allowlisted")
	}
}
