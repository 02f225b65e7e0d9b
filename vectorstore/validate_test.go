package vectorstore

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateVector(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		if err := ValidateVector([]float32{1, 2, 3}, 3, "v1"); err != nil {
			t.Errorf("Expected valid vector, got %v", err)
		}
	})

	t.Run("Nil", func(t *testing.T) {
		var verr *ValidationError
		err := ValidateVector(nil, 3, "v1")
		if !errors.As(err, &verr) {
			t.Errorf("Expected ValidationError, got %v", err)
		}
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		var derr *DimensionError
		err := ValidateVector([]float32{1, 2}, 3, "v1")
		if !errors.As(err, &derr) {
			t.Fatalf("Expected DimensionError, got %v", err)
		}
		if derr.Expected != 3 || derr.Actual != 2 {
			t.Errorf("Wrong dimensions in error: %+v", derr)
		}
	})

	t.Run("NaN", func(t *testing.T) {
		if err := ValidateVector([]float32{1, float32(math.NaN())}, 2, "v1"); err == nil {
			t.Error("Expected error for NaN component")
		}
	})

	t.Run("Inf", func(t *testing.T) {
		if err := ValidateVector([]float32{1, float32(math.Inf(1))}, 2, "v1"); err == nil {
			t.Error("Expected error for Inf component")
		}
	})

	t.Run("ZeroVectorAllowed", func(t *testing.T) {
		if err := ValidateVector([]float32{0, 0}, 2, "v1"); err != nil {
			t.Errorf("Zero vector should be accepted, got %v", err)
		}
	})
}

func TestSanitizeID(t *testing.T) {
	t.Run("Trim", func(t *testing.T) {
		id, err := SanitizeID("  atom:1  ")
		if err != nil {
			t.Fatalf("SanitizeID failed: %v", err)
		}
		if id != "atom:1" {
			t.Errorf("Expected trimmed id, got %q", id)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		if _, err := SanitizeID("   "); err == nil {
			t.Error("Expected error for blank id")
		}
	})

	t.Run("TooLong", func(t *testing.T) {
		if _, err := SanitizeID(strings.Repeat("a", 257)); err == nil {
			t.Error("Expected error for overlong id")
		}
	})

	t.Run("UnusualCharsAccepted", func(t *testing.T) {
		id, err := SanitizeID("atom 1")
		if err != nil {
			t.Fatalf("Unusual chars should be accepted: %v", err)
		}
		if id != "atom 1" {
			t.Errorf("Unexpected id %q", id)
		}
	})
}

func TestValidatePayload(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		if err := ValidatePayload(nil); err == nil {
			t.Error("Expected error for nil payload")
		}
	})

	t.Run("Valid", func(t *testing.T) {
		p := Payload{"kind": KindAtom, "text": "hello", "salience": 0.5}
		if err := ValidatePayload(p); err != nil {
			t.Errorf("Expected valid payload, got %v", err)
		}
	})

	t.Run("UnserializableValue", func(t *testing.T) {
		p := Payload{"kind": KindAtom, "bad": make(chan int)}
		if err := ValidatePayload(p); err == nil {
			t.Error("Expected error for unserializable value")
		}
	})
}

func TestValidateSearchParams(t *testing.T) {
	vec := []float32{1, 0}

	t.Run("Valid", func(t *testing.T) {
		if err := ValidateSearchParams(vec, 5, 2); err != nil {
			t.Errorf("Expected valid params, got %v", err)
		}
	})

	t.Run("NonPositiveK", func(t *testing.T) {
		if err := ValidateSearchParams(vec, 0, 2); err == nil {
			t.Error("Expected error for k=0")
		}
	})

	t.Run("HugeKAccepted", func(t *testing.T) {
		if err := ValidateSearchParams(vec, 5000, 2); err != nil {
			t.Errorf("Huge k should be accepted with a warning, got %v", err)
		}
	})
}

func TestFilterFromMap(t *testing.T) {
	flt := FilterFromMap(map[string]any{
		"kind":       "atom",
		"session_id": "s1",
		"day_gte":    "2026-01-01",
		"bogus":      "ignored",
	})

	if flt.Kind != "atom" || flt.SessionID != "s1" || flt.DayGTE != "2026-01-01" {
		t.Errorf("Unexpected filter: %+v", flt)
	}

	if FilterFromMap(nil) != nil {
		t.Error("Expected nil filter for nil map")
	}
}

func TestCheckConsistency(t *testing.T) {
	if issues := CheckConsistency(3, 3, 3); len(issues) != 0 {
		t.Errorf("Expected no issues, got %v", issues)
	}
	if issues := CheckConsistency(3, 2, 4); len(issues) != 2 {
		t.Errorf("Expected two issues, got %v", issues)
	}
}
