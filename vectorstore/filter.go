package vectorstore

import "time"

// ScopeFilter builds the query-time filter narrowing a similarity search:
// a date lower bound when sinceDays > 0, a session constraint when
// sameSessionOnly is set and a session id is given, and a kind constraint
// when kind is given.
func ScopeFilter(sessionID string, sinceDays int, sameSessionOnly bool, kind string) *Filter {
	flt := &Filter{}

	if sameSessionOnly && sessionID != "" {
		flt.SessionID = sessionID
	}
	if sinceDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -sinceDays)
		flt.DayGTE = cutoff.Format("2006-01-02")
	}
	if kind != "" {
		flt.Kind = kind
	}

	return flt
}
