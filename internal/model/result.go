package model

// Processing result statuses.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusError   = "error"
)

// ReasonConfigNotFoundOrDisabled is the skip reason for users without an
// enabled configuration.
const ReasonConfigNotFoundOrDisabled = "configuration_not_found_or_disabled"

// Result is the outcome of one per-user processing pass. Errors may be
// non-empty while Status is still "success": per-email failures do not
// fail the run.
type Result struct {
	Status         string   `json:"status"`
	ProcessedCount int      `json:"processed_count"`
	Errors         []string `json:"errors"`
	Reason         string   `json:"reason,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// SuccessResult builds a success result for a completed pass.
func SuccessResult(processed int, errs []string) Result {
	if errs == nil {
		errs = []string{}
	}
	return Result{Status: StatusSuccess, ProcessedCount: processed, Errors: errs}
}

// SkippedResult builds a skipped result with a reason.
func SkippedResult(reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason}
}

// ErrorResult builds an error result for a hard failure.
func ErrorResult(msg string) Result {
	return Result{Status: StatusError, Error: msg}
}
