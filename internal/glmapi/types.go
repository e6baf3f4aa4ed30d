package glmapi

// quotaResponse mirrors GET /api/monitor/usage/quota/limit. A 200 response
// may still carry success=false with an error code and message.
type quotaResponse struct {
	Success *bool      `json:"success,omitempty"`
	Code    any        `json:"code,omitempty"`
	Message string     `json:"message,omitempty"`
	Msg     string     `json:"msg,omitempty"`
	Data    *quotaData `json:"data"`
}

type quotaData struct {
	Limits []limitItem `json:"limits"`
}

type limitItem struct {
	Type          string        `json:"type"`
	Usage         int64         `json:"usage"`
	CurrentValue  int64         `json:"currentValue"`
	Remaining     int64         `json:"remaining"`
	Percentage    float64       `json:"percentage"`
	NextResetTime any           `json:"nextResetTime,omitempty"` // RFC3339 string or unix ms
	UsageDetails  []usageDetail `json:"usageDetails,omitempty"`
}

type usageDetail struct {
	ModelCode string `json:"modelCode"`
	Usage     int64  `json:"usage"`
}
