package reconcile

import (
	"errors"
	"fmt"

	"github.com/dokzlo13/lmsync/internal/logicmonitor"
)

// ErrTooManySteps is returned when a resource does not converge within maxSteps.
var ErrTooManySteps = errors.New("resource did not converge")

// APIError is a failed API call, carrying the raw response for diagnosis.
type APIError struct {
	Op       string
	Resource ResourceKey
	Status   logicmonitor.Status
	Errmsg   string
	Raw      string
}

// NewAPIError builds an APIError from a response envelope.
func NewAPIError(op string, key ResourceKey, env *logicmonitor.Envelope) *APIError {
	e := &APIError{Op: op, Resource: key, Raw: env.String()}
	if env != nil {
		e.Status = env.Status
		e.Errmsg = env.Errmsg
	}
	return e
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s failed (status=%d, errmsg=%q): %s", e.Op, e.Resource, e.Status, e.Errmsg, e.Raw)
}

// AmbiguousMatchError is raised when a filter that should identify one
// remote object matches several.
type AmbiguousMatchError struct {
	Resource ResourceKey
	Filter   string
	Total    int
}

func (e *AmbiguousMatchError) Error() string {
	return fmt.Sprintf("ambiguous match for %s: filter %q matched %d items", e.Resource, e.Filter, e.Total)
}
