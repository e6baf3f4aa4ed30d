package quota

import "time"

// Limit types reported by the quota API.
const (
	LimitTokens = "TOKENS_LIMIT"
	LimitTime   = "TIME_LIMIT"
)

// Snapshot is one consistent usage reading from a successful fetch. It is
// replaced wholesale by the next successful fetch and must not be mutated
// once published.
type Snapshot struct {
	TotalQuota      int64     `json:"totalQuota"`
	UsedQuota       int64     `json:"usedQuota"`
	RemainingQuota  int64     `json:"remainingQuota"`
	UsagePercentage float64   `json:"usagePercentage"`
	Limits          []Limit   `json:"limits"`
	FetchedAt       time.Time `json:"fetchedAt"`
}

type Limit struct {
	Type          string        `json:"type"`
	Usage         int64         `json:"usage"`
	CurrentValue  int64         `json:"currentValue"`
	Remaining     int64         `json:"remaining"`
	Percentage    float64       `json:"percentage"`
	NextResetTime *time.Time    `json:"nextResetTime,omitempty"`
	Details       []UsageDetail `json:"usageDetails,omitempty"`
}

type UsageDetail struct {
	ModelCode string `json:"modelCode"`
	Usage     int64  `json:"usage"`
}

// TokenLimit returns the TOKENS_LIMIT entry, if present.
func (s *Snapshot) TokenLimit() (Limit, bool) {
	if s == nil {
		return Limit{}, false
	}
	for _, l := range s.Limits {
		if l.Type == LimitTokens {
			return l, true
		}
	}
	return Limit{}, false
}
