package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Media / stream fields
	FieldFormat     = "format"
	FieldTier       = "tier"
	FieldBandwidth  = "bandwidth_bps"
	FieldResolution = "resolution"

	// Path / URL fields
	FieldURL     = "url"
	FieldBaseURL = "base_url"
)
