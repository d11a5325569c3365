package group

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/dokzlo13/lmsync/internal/declare"
	"github.com/dokzlo13/lmsync/internal/logicmonitor"
	"github.com/dokzlo13/lmsync/internal/logicmonitor/lmtest"
	"github.com/dokzlo13/lmsync/internal/reconcile"
)

func boolPtr(b bool) *bool {
	return &b
}

func newResolver() (*Resolver, *lmtest.Fake) {
	fake := lmtest.New()
	return NewResolver(fake, reconcile.Options{Alerts: reconcile.AlertFunc(func(context.Context, reconcile.Alert) {})}), fake
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path    string
		want    []string
		wantErr bool
	}{
		{"/", nil, false},
		{"/puppet", []string{"puppet"}, false},
		{"/a/b/c", []string{"a", "b", "c"}, false},
		{"a/b", nil, true},
		{"/a//b", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := SplitPath(tt.path)
			if tt.wantErr {
				if !errors.Is(err, declare.ErrInvalidPath) {
					t.Errorf("SplitPath(%q) error = %v, want ErrInvalidPath", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SplitPath(%q): %v", tt.path, err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("SplitPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestResolve_RootCreatesNothing(t *testing.T) {
	r, fake := newResolver()

	res, err := r.Resolve(context.Background(), "/", Attributes{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.ID != logicmonitor.RootGroupID {
		t.Errorf("ID = %d, want root", res.ID)
	}
	if len(res.Created) != 0 || fake.CountCalls(http.MethodPost, "") != 0 {
		t.Errorf("root resolution created groups: %v", res.Created)
	}
}

func TestResolve_CreatesMissingChain(t *testing.T) {
	r, fake := newResolver()
	existing := fake.AddGroup(logicmonitor.RootGroupID, "puppetlabs", nil)

	res, err := r.Resolve(context.Background(), "/puppetlabs/web/frontend", Attributes{
		Description: "A very useful description",
		Properties:  map[string]string{"snmp.community": "public"},
		AlertEnable: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("Created = %v, want 2 groups", res.Created)
	}

	web, _ := fake.Group(res.Created[0])
	if web.ParentID != existing || web.Name != "web" {
		t.Errorf("intermediate = %+v", web)
	}
	if web.Description != "" || web.DisableAlerting || len(web.CustomProperties) != 0 {
		t.Errorf("intermediate group should get defaults, got %+v", web)
	}

	leaf, _ := fake.Group(res.ID)
	if leaf.ParentID != web.ID || leaf.Name != "frontend" {
		t.Errorf("terminal = %+v", leaf)
	}
	if leaf.Description != "A very useful description" || !leaf.DisableAlerting {
		t.Errorf("terminal attributes not applied: %+v", leaf)
	}
	if leaf.PropertyMap()["snmp.community"] != "public" {
		t.Errorf("terminal properties = %v", leaf.CustomProperties)
	}
}

func TestResolve_Idempotent(t *testing.T) {
	paths := []string{"/puppet", "/a/b/c", "/x/y", "/a/b/d"}

	r, fake := newResolver()
	ctx := context.Background()

	for _, p := range paths {
		first, err := r.Resolve(ctx, p, Attributes{})
		if err != nil {
			t.Fatalf("Resolve(%q): %v", p, err)
		}
		before := len(fake.Groups())

		second, err := r.Resolve(ctx, p, Attributes{})
		if err != nil {
			t.Fatalf("Resolve(%q) again: %v", p, err)
		}
		if second.ID != first.ID {
			t.Errorf("Resolve(%q) ids differ: %d != %d", p, second.ID, first.ID)
		}
		if len(second.Created) != 0 || len(fake.Groups()) != before {
			t.Errorf("second Resolve(%q) created %v", p, second.Created)
		}

		found, err := r.Lookup(ctx, p)
		if err != nil || found == nil || found.ID != first.ID {
			t.Errorf("Lookup(%q) = %v, %v", p, found, err)
		}
	}
}

func TestResolve_SegmentsWithFilterCharacters(t *testing.T) {
	r, fake := newResolver()
	ctx := context.Background()

	for _, p := range []string{"/Linux, Prod", `/dc:1/rack "a"`, `/a\b/parentId:1`} {
		first, err := r.Resolve(ctx, p, Attributes{})
		if err != nil {
			t.Fatalf("Resolve(%q): %v", p, err)
		}
		before := len(fake.Groups())

		second, err := r.Resolve(ctx, p, Attributes{})
		if err != nil {
			t.Fatalf("Resolve(%q) again: %v", p, err)
		}
		if second.ID != first.ID || len(fake.Groups()) != before {
			t.Errorf("Resolve(%q) did not converge: %d != %d, groups %d -> %d", p, second.ID, first.ID, before, len(fake.Groups()))
		}
	}

	g, ok := fake.Group(fake.Groups()[1].ID)
	if !ok || g.Name != "Linux, Prod" {
		t.Errorf("group = %+v", g)
	}
}

func TestResolve_IntermediateFailureAborts(t *testing.T) {
	r, fake := newResolver()
	posts := 0
	fake.Fail = func(method, _ string) *logicmonitor.Envelope {
		if method != http.MethodPost {
			return nil
		}
		posts++
		if posts == 2 {
			return lmtest.ErrorEnvelope(1007, "creation refused")
		}
		return nil
	}

	_, err := r.Resolve(context.Background(), "/a/b/c", Attributes{})
	var apiErr *reconcile.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Resolve error = %v, want APIError", err)
	}

	// "a" stays: no rollback of created ancestors.
	if len(fake.Groups()) != 2 {
		t.Errorf("groups = %d, want root + a", len(fake.Groups()))
	}
}

func TestLookup_MissingSegment(t *testing.T) {
	r, fake := newResolver()
	fake.AddGroup(logicmonitor.RootGroupID, "a", nil)

	g, err := r.Lookup(context.Background(), "/a/b")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if g != nil {
		t.Errorf("Lookup = %+v, want nil", g)
	}
	if fake.CountCalls(http.MethodPost, "") != 0 {
		t.Error("Lookup must not create groups")
	}
}

// wrongParentAPI returns the same group for every child lookup, which would
// loop forever without cycle detection.
type wrongParentAPI struct {
	*lmtest.Fake
}

func (w wrongParentAPI) Query(ctx context.Context, endpoint string, q logicmonitor.Query) (*logicmonitor.Envelope, error) {
	if strings.HasPrefix(q.Filter, "parentId:") {
		q.Filter = logicmonitor.Filter(logicmonitor.Eq("id", logicmonitor.RootGroupID))
	}
	return w.Fake.Query(ctx, endpoint, q)
}

func TestLookup_DetectsCycle(t *testing.T) {
	api := wrongParentAPI{lmtest.New()}
	r := NewResolver(api, reconcile.Options{})

	_, err := r.Lookup(context.Background(), "/a")
	if !errors.Is(err, ErrPathCycle) {
		t.Fatalf("Lookup error = %v, want ErrPathCycle", err)
	}
}
