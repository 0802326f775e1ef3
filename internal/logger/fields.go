package logger

// Fields is a set of structured log fields.
type Fields map[string]interface{}

// Tracing fields, carried by the context logger through a request.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldComponent = "component"
	FieldVideoID   = "video_id"
	FieldStage     = "stage"
	FieldProvider  = "provider"
)

// Metric fields, attached per log line through the Entry API.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
	FieldErrorKind  = "error_kind"
)
