package reconcile

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/logicmonitor/lmtest"
)

func TestRateLimitedAPI_ThrottlesEveryCall(t *testing.T) {
	fake := lmtest.New()
	api := NewRateLimitedAPI(fake, 1)

	if _, err := api.Query(context.Background(), logicmonitor.DeviceGroupsEndpoint, logicmonitor.Query{}); err != nil {
		t.Fatalf("first Query: %v", err)
	}

	calls := []func(ctx context.Context) error{
		func(ctx context.Context) error {
			_, err := api.Query(ctx, logicmonitor.DeviceGroupsEndpoint, logicmonitor.Query{})
			return err
		},
		func(ctx context.Context) error {
			_, err := api.Create(ctx, logicmonitor.CollectorsEndpoint, logicmonitor.NewCollector("h"))
			return err
		},
		func(ctx context.Context) error {
			_, err := api.Update(ctx, "/device/groups/1?patchFields=description", logicmonitor.DeviceGroup{})
			return err
		},
		func(ctx context.Context) error {
			_, err := api.Delete(ctx, "/setting/collectors/2")
			return err
		},
	}
	for i, call := range calls {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := call(ctx)
		cancel()
		if err == nil {
			t.Errorf("call %d: expected limiter error within the token interval", i)
		}
	}

	if got := len(fake.Calls()); got != 1 {
		t.Errorf("calls reaching the API = %d, want 1", got)
	}
	if n := fake.CountCalls(http.MethodGet, ""); n != 1 {
		t.Errorf("GET calls = %d, want 1", n)
	}
}

func TestRateLimitedAPI_PassesThrough(t *testing.T) {
	fake := lmtest.New()
	api := NewRateLimitedAPI(fake, 1000)
	ctx := context.Background()

	env, err := api.Create(ctx, logicmonitor.CollectorsEndpoint, logicmonitor.NewCollector("host1"))
	if err != nil || env.Status != logicmonitor.StatusOK {
		t.Fatalf("Create = %v, %v", env, err)
	}
	if n := len(fake.Collectors()); n != 1 {
		t.Errorf("collectors = %d, want 1", n)
	}
}
