package reconcile

import (
	"encoding/json"

	"github.com/dokzlo13/lmsync/internal/logicmonitor"
)

// Outcome classifies an API response.
type Outcome int

const (
	OutcomeFailure Outcome = iota
	OutcomeSuccess
	OutcomeSuccessEmpty // the call succeeded but matched nothing
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeSuccessEmpty:
		return "success_empty"
	default:
		return "failure"
	}
}

// ClassifyOptions selects the response expectations.
type ClassifyOptions struct {
	// ExpectSingleItem requires data.items to be non-empty for Success.
	ExpectSingleItem bool
	// IdempotentDelete treats "not found" as Success.
	IdempotentDelete bool
}

// Classify inspects a response envelope. It has no side effects.
func Classify(env *logicmonitor.Envelope, opts ClassifyOptions) Outcome {
	if env == nil {
		return OutcomeFailure
	}

	if env.Status == logicmonitor.StatusNotFound && opts.IdempotentDelete {
		return OutcomeSuccess
	}
	if env.Status != logicmonitor.StatusOK {
		return OutcomeFailure
	}
	if !opts.ExpectSingleItem {
		return OutcomeSuccess
	}

	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	if len(env.Data) == 0 || json.Unmarshal(env.Data, &page) != nil {
		return OutcomeFailure
	}
	if len(page.Items) == 0 {
		return OutcomeSuccessEmpty
	}
	return OutcomeSuccess
}
