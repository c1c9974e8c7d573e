package health

// healthResponse represents the health status of the API
type healthResponse struct {
	Status    string            `json:"status"`           // ok or unhealthy
	Timestamp string            `json:"timestamp"`        // RFC3339
	Uptime    string            `json:"uptime"`           // since start
	Checks    map[string]string `json:"checks,omitempty"` // readiness only
}
