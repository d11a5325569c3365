package reconcile

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/dokzlo13/lmsync/internal/logicmonitor"
)

// RateLimitedAPI waits on a shared limiter before every API call, so deep
// group paths and multi-call steps are throttled per request.
type RateLimitedAPI struct {
	api     ResourceAPI
	limiter *rate.Limiter
}

// NewRateLimitedAPI wraps api with a limiter of rps requests per second.
// A non-positive rps defaults to 5.
func NewRateLimitedAPI(api ResourceAPI, rps float64) *RateLimitedAPI {
	if rps <= 0 {
		rps = 5.0
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedAPI{api: api, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimitedAPI) Query(ctx context.Context, endpoint string, q logicmonitor.Query) (*logicmonitor.Envelope, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.api.Query(ctx, endpoint, q)
}

func (r *RateLimitedAPI) Create(ctx context.Context, endpoint string, body any) (*logicmonitor.Envelope, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.api.Create(ctx, endpoint, body)
}

func (r *RateLimitedAPI) Update(ctx context.Context, endpoint string, body any) (*logicmonitor.Envelope, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.api.Update(ctx, endpoint, body)
}

func (r *RateLimitedAPI) Delete(ctx context.Context, endpoint string) (*logicmonitor.Envelope, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.api.Delete(ctx, endpoint)
}
