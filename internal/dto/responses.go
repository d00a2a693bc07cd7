package dto

// IngestResult is returned by POST /detections.
type IngestResult struct {
	Inserted int    `json:"inserted"`
	ID       *int64 `json:"id,omitempty"`
}

// ErrorData is the body of every non-2xx JSON response.
type ErrorData struct {
	Error string `json:"error"`
}

// HealthData is returned by GET /health.
type HealthData struct {
	OK bool `json:"ok"`
}
