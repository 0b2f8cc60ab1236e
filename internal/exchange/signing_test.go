package exchange

import "testing"

func TestSignIsDeterministicForSameInputs(t *testing.T) {
	a := sign("secret", "2024-01-01T00:00:00.000Z", "POST", "/api/v5/trade/order", `{"a":1}`)
	b := sign("secret", "2024-01-01T00:00:00.000Z", "POST", "/api/v5/trade/order", `{"a":1}`)
	if a != b {
		t.Fatalf("expected identical signatures for identical inputs, got %q and %q", a, b)
	}
}

func TestSignChangesWithBody(t *testing.T) {
	a := sign("secret", "2024-01-01T00:00:00.000Z", "POST", "/path", `{"a":1}`)
	b := sign("secret", "2024-01-01T00:00:00.000Z", "POST", "/path", `{"a":2}`)
	if a == b {
		t.Fatalf("expected different signatures for different bodies")
	}
}
