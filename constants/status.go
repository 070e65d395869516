package constants

// Stage is a state of one pipeline execution.
type Stage string

// Stable values (these exact strings appear in logs, metrics and reports).
const (
	StageExtracting  Stage = "EXTRACTING"
	StagePrompting   Stage = "PROMPTING"
	StageAnalyzing   Stage = "ANALYZING"
	StageNormalizing Stage = "NORMALIZING"
	StagePersisting  Stage = "PERSISTING"
	StageSucceeded   Stage = "SUCCEEDED" // terminal
	StageFailed      Stage = "FAILED"    // terminal
)

// Terminal reports whether no further transitions are allowed from s.
func (s Stage) Terminal() bool {
	return s == StageSucceeded || s == StageFailed
}

// Status is the outcome of a finished execution.
type Status string

const (
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// FailureReason is the stable reason code carried by a failed execution.
type FailureReason string

const (
	ReasonNone                 FailureReason = ""
	ReasonSourceError          FailureReason = "SourceError"
	ReasonTextExtractionError  FailureReason = "TextExtractionError"
	ReasonExtractionExhausted  FailureReason = "ExtractionExhausted"
	ReasonExtractionError      FailureReason = "ExtractionError"
	ReasonPersistenceExhausted FailureReason = "PersistenceExhausted"
	ReasonDeadlineExceeded     FailureReason = "DeadlineExceeded"
)
