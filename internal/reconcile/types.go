// Package reconcile provides the reconciliation framework for making the
// remote inventory match the declared resources.
package reconcile

import (
	"context"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/logicmonitor"
)

// ResourceKey uniquely identifies a reconcilable resource.
type ResourceKey struct {
	Kind declare.Kind
	ID   string
}

func (k ResourceKey) String() string {
	return string(k.Kind) + "/" + k.ID
}

// Resource is the core abstraction for anything reconcilable.
// Each resource loads its own state internally and knows how to
// transition from actual to desired state.
type Resource interface {
	// Key returns unique identifier for this resource.
	Key() ResourceKey

	// Load queries the remote API for the current state.
	Load(ctx context.Context) error

	// NeedsReconcile returns true if actual != desired (uses loaded state).
	NeedsReconcile() bool

	// Action names the step ReconcileStep would take next.
	Action() string

	// ReconcileStep performs one transition step. Returns:
	//   done=true:  converged or nothing to do
	//   done=false: call again (Load is repeated first)
	ReconcileStep(ctx context.Context) (done bool, err error)
}

// ResourceAPI is the capability the reconcilers need from the API client.
type ResourceAPI interface {
	Query(ctx context.Context, endpoint string, q logicmonitor.Query) (*logicmonitor.Envelope, error)
	Create(ctx context.Context, endpoint string, body any) (*logicmonitor.Envelope, error)
	Update(ctx context.Context, endpoint string, body any) (*logicmonitor.Envelope, error)
	Delete(ctx context.Context, endpoint string) (*logicmonitor.Envelope, error)
}
