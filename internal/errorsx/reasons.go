package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSubmission       ReasonCode = "submission"
	ReasonMalformedSegment ReasonCode = "malformed_segment"
	ReasonSegmentFetch     ReasonCode = "segment_fetch"
	ReasonStorage          ReasonCode = "storage"
	ReasonTimeout          ReasonCode = "timeout"
	ReasonCanceled         ReasonCode = "canceled"
	ReasonInvalidRequest   ReasonCode = "invalid_request"
	ReasonCircuitOpen      ReasonCode = "circuit_open"

	ReasonTranscription ReasonCode = "transcription"
	ReasonTranslation   ReasonCode = "translation"
)
