package vectorstore

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/smallnest/murmur/internal/logger"
	"go.uber.org/zap"
)

// maxIDLength bounds sanitized vector identifiers.
const maxIDLength = 256

// maxReasonableK is the point above which a search limit is logged as
// suspicious but still accepted.
const maxReasonableK = 1000

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-:.]+$`)

// ValidateVector rejects vectors that must not cross the index boundary:
// nil, wrong dimension, or any NaN/Inf component. An all-zero vector is
// allowed but logged, since it usually means an upstream embedding failed.
func ValidateVector(vec []float32, expectedDim int, id string) error {
	if vec == nil {
		return &ValidationError{Reason: fmt.Sprintf("vector is nil (%s)", id)}
	}
	if len(vec) != expectedDim {
		return &DimensionError{Expected: expectedDim, Actual: len(vec)}
	}

	zero := true
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) {
			return &ValidationError{Reason: fmt.Sprintf("vector contains NaN (%s)", id)}
		}
		if math.IsInf(f, 0) {
			return &ValidationError{Reason: fmt.Sprintf("vector contains Inf (%s)", id)}
		}
		if v != 0 {
			zero = false
		}
	}
	if zero {
		logger.Warn("zero vector detected", zap.String("id", id))
	}
	return nil
}

// ValidatePayload rejects nil payloads and values that cannot be
// serialized. A missing kind field is a warning, not a rejection.
func ValidatePayload(p Payload) error {
	if p == nil {
		return &ValidationError{Reason: "payload is nil"}
	}
	if _, ok := p["kind"]; !ok {
		logger.Warn("payload missing kind field")
	}
	for key, value := range p {
		if _, err := json.Marshal(value); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("payload value not serializable (%s): %v", key, err)}
		}
	}
	return nil
}

// SanitizeID trims and validates a vector identifier, returning the
// cleaned id. Characters outside the allow-list are warned about but
// accepted.
func SanitizeID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &ValidationError{Reason: "vector id is empty"}
	}
	if len(id) > maxIDLength {
		return "", &ValidationError{Reason: fmt.Sprintf("vector id too long: %d chars", len(id))}
	}
	if !idPattern.MatchString(id) {
		logger.Warn("vector id contains unexpected characters", zap.String("id", id))
	}
	return id, nil
}

// ValidateSearchParams checks a query vector and result limit before a
// search is issued. Implausibly large limits are accepted with a warning.
func ValidateSearchParams(vec []float32, k int, expectedDim int) error {
	if err := ValidateVector(vec, expectedDim, "search_vector"); err != nil {
		return err
	}
	if k <= 0 {
		return &ValidationError{Reason: fmt.Sprintf("k must be positive: %d", k)}
	}
	if k > maxReasonableK {
		logger.Warn("search limit is very large", zap.Int("k", k))
	}
	return nil
}

// FilterFromMap builds a Filter from a loosely-typed request map.
// Unrecognized keys are logged and ignored so that newer callers keep
// working against this version.
func FilterFromMap(m map[string]any) *Filter {
	if m == nil {
		return nil
	}
	flt := &Filter{}
	for key, value := range m {
		s, _ := value.(string)
		switch key {
		case "kind":
			flt.Kind = s
		case "session_id":
			flt.SessionID = s
		case "day_gte":
			flt.DayGTE = s
		default:
			logger.Warn("unknown filter key", zap.String("key", key))
		}
	}
	return flt
}

// CheckConsistency compares the three local-index bookkeeping counts and
// returns a description of every drift found. An empty result means the
// maps agree.
func CheckConsistency(metadataCount, idMapCount, slotMapCount int) []string {
	var issues []string
	if metadataCount != idMapCount {
		issues = append(issues, fmt.Sprintf("metadata/id-map count mismatch: metadata=%d, ids=%d", metadataCount, idMapCount))
	}
	if idMapCount != slotMapCount {
		issues = append(issues, fmt.Sprintf("id-map/slot-map count mismatch: ids=%d, slots=%d", idMapCount, slotMapCount))
	}
	return issues
}
