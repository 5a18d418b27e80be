package domain

// ============================================================
// Health API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      int64  `json:"id,omitempty"`
}

// OpsMetrics is returned by GET /ops/metrics.
type OpsMetrics struct {
	WebhooksTotal     int64   `json:"webhooksTotal"`
	WebhooksApplied   int64   `json:"webhooksApplied"`
	WebhooksDuplicate int64   `json:"webhooksDuplicate"`
	WebhooksNoMatch   int64   `json:"webhooksNoMatch"`
	DuplicateRate     float64 `json:"duplicateRate"`
	LedgerHitRate     float64 `json:"ledgerHitRate"`
	GatewayErrors     int64   `json:"gatewayErrors"`
	BlobStoreErrors   int64   `json:"blobStoreErrors"`
	Period            string  `json:"period"`
}
