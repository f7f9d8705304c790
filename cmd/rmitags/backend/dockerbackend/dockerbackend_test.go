package dockerbackend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/client"
	"github.com/reproducible-containers/rmitags/cmd/rmitags/backend"
	"github.com/reproducible-containers/rmitags/pkg/remover"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

type removeRequest struct {
	Name    string
	Force   string
	NoPrune string
}

// fakeEngine serves the few Engine API endpoints the backend uses.
type fakeEngine struct {
	mu       sync.Mutex
	requests []removeRequest
}

func (e *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/_ping"):
		w.Header().Set("API-Version", "1.47")
		w.Header().Set("OSType", "linux")
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/images/json"):
		writeJSON(w, http.StatusOK, []map[string]any{
			{"Id": "sha256:aaaa", "RepoTags": []string{"repo:v1", "repo:v2"}},
			{"Id": "sha256:bbbb", "RepoTags": []string{}},
		})
	case r.Method == http.MethodDelete && strings.Contains(r.URL.Path, "/images/"):
		name := r.URL.Path[strings.Index(r.URL.Path, "/images/")+len("/images/"):]
		e.mu.Lock()
		e.requests = append(e.requests, removeRequest{
			Name:    name,
			Force:   r.URL.Query().Get("force"),
			NoPrune: r.URL.Query().Get("noprune"),
		})
		e.mu.Unlock()
		switch name {
		case "repo:v1":
			writeJSON(w, http.StatusOK, []map[string]string{
				{"Untagged": "repo:v1"},
				{"Deleted": "sha256:aaaa"},
				{"Deleted": "sha256:cccc"},
			})
		case "repo:busy":
			writeJSON(w, http.StatusConflict, map[string]string{
				"message": "conflict: unable to delete repo:busy (must be forced) - image is being used by running container",
			})
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "No such image: " + name})
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "page not found"})
	}
}

func (e *fakeEngine) removed() []removeRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]removeRequest(nil), e.requests...)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestBackend(t *testing.T) (backend.Backend, *fakeEngine) {
	t.Helper()
	engine := &fakeEngine{}
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	b, err := NewWithOpts(context.Background(),
		client.WithHost("tcp://"+srv.Listener.Addr().String()),
		client.WithAPIVersionNegotiation(),
	)
	assert.NilError(t, err)
	t.Cleanup(func() { b.Close() })
	return b, engine
}

func TestRemoveImage(t *testing.T) {
	b, engine := newTestBackend(t)
	ctx := b.Context(context.Background())
	items, err := b.RemoveImage(ctx, "repo:v1", remover.RemoveOptions{Force: true})
	assert.NilError(t, err)
	assert.DeepEqual(t, items, []remover.Item{
		{Kind: remover.Untagged, ID: "repo:v1"},
		{Kind: remover.Deleted, ID: "sha256:aaaa"},
		{Kind: remover.Deleted, ID: "sha256:cccc"},
	})
	assert.DeepEqual(t, engine.removed(), []removeRequest{{Name: "repo:v1", Force: "1", NoPrune: "1"}})
}

func TestRemoveImageNotFound(t *testing.T) {
	b, _ := newTestBackend(t)
	_, err := b.RemoveImage(context.Background(), "repo:gone", remover.RemoveOptions{})
	assert.ErrorIs(t, err, errdefs.ErrNotFound)
}

func TestRemoveAllThroughEngine(t *testing.T) {
	b, engine := newTestBackend(t)
	ctx := b.Context(context.Background())
	outcomes, err := remover.New(b).RemoveAll(ctx, "repo:latest", []string{"v1", "gone", "busy", "v9"})
	assert.ErrorContains(t, err, `"repo:busy"`)
	assert.Assert(t, !errdefs.IsNotFound(err))

	var names []string
	for _, r := range engine.removed() {
		names = append(names, r.Name)
	}
	assert.DeepEqual(t, names, []string{"repo:v1", "repo:gone", "repo:busy"})

	var statuses []remover.Status
	for _, o := range outcomes {
		statuses = append(statuses, o.Status)
	}
	assert.DeepEqual(t, statuses, []remover.Status{
		remover.StatusRemoved, remover.StatusRemoved, remover.StatusRemoved,
		remover.StatusNotFound,
		remover.StatusFailed,
	})
}

func TestImages(t *testing.T) {
	b, _ := newTestBackend(t)
	imgs, err := b.Images(context.Background())
	assert.NilError(t, err)
	assert.DeepEqual(t, imgs, []backend.Image{
		{Name: "repo:v1", ID: "sha256:aaaa"},
		{Name: "repo:v2", ID: "sha256:aaaa"},
		{ID: "sha256:bbbb"},
	})
}

func TestInfo(t *testing.T) {
	b, _ := newTestBackend(t)
	info := b.Info()
	assert.Equal(t, info.Name, Name)
	assert.Assert(t, is.Contains(info.Address, "tcp://127.0.0.1:"))
}
