package vectorstore

import (
	"math"
	"sort"
	"time"

	"github.com/smallnest/murmur/config"
)

// RankedHit is a Hit annotated with its composite ranking score.
type RankedHit struct {
	Hit
	HybridScore float64 `json:"hybrid_score"`
}

// HybridScore computes the composite ranking value for a single hit:
//
//	score = alpha*cosine + beta*recency + gamma*salience - delta*boundary
//
// recency decays exponentially with the age of the payload timestamp and
// is 0 when the timestamp is missing or unparseable; salience defaults to
// 0.5; the boundary penalty is 1 for boundary-marked payloads.
func HybridScore(hit Hit, now time.Time, cfg config.RankingConfig) float64 {
	cosine := hit.Score

	recency := 0.0
	if ts, ok := hit.Payload["ts"].(string); ok && ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			deltaHours := now.Sub(parsed).Hours()
			halflife := cfg.HalflifeHours
			if halflife <= 0 {
				halflife = 72
			}
			recency = math.Exp(-deltaHours / halflife)
		}
	}

	salience := 0.5
	if s, ok := toFloat(hit.Payload["salience"]); ok {
		salience = s
	}

	boundaryPenalty := 0.0
	if b, ok := hit.Payload["boundary"].(bool); ok && b {
		boundaryPenalty = 1.0
	}

	return cfg.Alpha*cosine + cfg.Beta*recency + cfg.Gamma*salience - cfg.Delta*boundaryPenalty
}

// Rerank orders hits by descending hybrid score. The sort is stable so
// equal scores keep their prior relative order.
func Rerank(hits []Hit, cfg config.RankingConfig, now time.Time) []RankedHit {
	if len(hits) == 0 {
		return nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	ranked := make([]RankedHit, len(hits))
	for i, hit := range hits {
		ranked[i] = RankedHit{Hit: hit, HybridScore: HybridScore(hit, now, cfg)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].HybridScore > ranked[j].HybridScore
	})

	return ranked
}

// toFloat extracts a numeric payload value. JSON decoding yields float64,
// but values set in-process may be other numeric types.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
