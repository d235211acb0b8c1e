package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of a backing dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// CoreMetrics is returned by GET /v1/metrics/summary.
type CoreMetrics struct {
	Registered          int64   `json:"registered"`
	AlreadyRegistered   int64   `json:"alreadyRegistered"`
	RegistrationErrors  int64   `json:"registrationErrors"`
	Refunded            int64   `json:"refunded"`
	RefundErrors        int64   `json:"refundErrors"`
	SideEffectFailures  int64   `json:"sideEffectFailures"`
	ProviderErrors      int64   `json:"providerErrors"`
	CompanyCacheHitRate float64 `json:"companyCacheHitRate"`
	Period              string  `json:"period"`
}

// SplitSimulationRequest is the body of POST /v1/splits/simulate.
type SplitSimulationRequest struct {
	Amount     int64              `json:"amount"`
	OwnerID    string             `json:"owner_id,omitempty"`
	SplitRules []SplitInstruction `json:"split_rules"`
}

// SplitSimulationResponse carries the allocator output.
type SplitSimulationResponse struct {
	Amount     int64           `json:"amount"`
	SplitRules []ResolvedSplit `json:"split_rules"`
}

// RefundRequest is the optional body of POST /v1/transactions/{id}/refund.
type RefundRequest struct {
	RequestedBy string `json:"requested_by,omitempty"`
}
