package reconcile

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Alert is a reportable condition that does not fail the resource, such as
// destroying a collector that does not exist.
type Alert struct {
	Resource ResourceKey
	Message  string
	Raw      string // raw API response, if any
}

// AlertSink receives alerts.
type AlertSink interface {
	Alert(ctx context.Context, a Alert)
}

// LogAlertSink writes alerts to the global logger.
type LogAlertSink struct{}

func (LogAlertSink) Alert(_ context.Context, a Alert) {
	log.Warn().
		Str("resource", a.Resource.String()).
		Str("response", a.Raw).
		Msg(a.Message)
}

// MultiAlertSink fans an alert out to several sinks.
type MultiAlertSink []AlertSink

func (m MultiAlertSink) Alert(ctx context.Context, a Alert) {
	for _, s := range m {
		s.Alert(ctx, a)
	}
}

// AlertFunc adapts a function to AlertSink.
type AlertFunc func(ctx context.Context, a Alert)

func (f AlertFunc) Alert(ctx context.Context, a Alert) {
	f(ctx, a)
}

// AmbiguousPolicy decides what to do when an identity filter matches
// more than one remote object.
type AmbiguousPolicy int

const (
	// AmbiguousWarn acts on the first item in server order and raises an alert.
	AmbiguousWarn AmbiguousPolicy = iota
	// AmbiguousFail fails the resource without mutating anything.
	AmbiguousFail
)

// Options is shared by the resource reconcilers.
type Options struct {
	Alerts    AlertSink
	Ambiguous AmbiguousPolicy
}

// Alert sends an alert to the configured sink, or the log if none is set.
func (o Options) Alert(ctx context.Context, a Alert) {
	if o.Alerts == nil {
		LogAlertSink{}.Alert(ctx, a)
		return
	}
	o.Alerts.Alert(ctx, a)
}

// CheckMatches applies the ambiguity policy to a lookup that returned total
// matches. It returns an *AmbiguousMatchError only under AmbiguousFail.
func (o Options) CheckMatches(ctx context.Context, key ResourceKey, filter string, total int) error {
	if total <= 1 {
		return nil
	}
	err := &AmbiguousMatchError{Resource: key, Filter: filter, Total: total}
	if o.Ambiguous == AmbiguousFail {
		return err
	}
	o.Alert(ctx, Alert{Resource: key, Message: err.Error() + "; using first item"})
	return nil
}
