package constants

// ErrorKind classifies terminal item failures in the extraction pipeline.
type ErrorKind string

// Stable values (callers branch on these exact strings).
const (
	ErrKindNone        ErrorKind = ""                    // success
	ErrKindRecognition ErrorKind = "RECOGNITION_FAILURE" // OCR produced no usable text
	ErrKindAICall      ErrorKind = "AI_CALL_FAILURE"     // extraction call failed after retries
	ErrKindValidation  ErrorKind = "VALIDATION_FAILURE"  // AI reply malformed or incomplete
	ErrKindTimeout     ErrorKind = "TIMEOUT"             // per-item or batch deadline exceeded
	ErrKindInternal    ErrorKind = "INTERNAL_FAULT"      // uncaught fault inside a step
)
