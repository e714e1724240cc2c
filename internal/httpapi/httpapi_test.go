package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/clusterkit/raftkv/internal/clusterkv"
	"github.com/clusterkit/raftkv/internal/kvsm"
	"github.com/clusterkit/raftkv/internal/raft"
	"github.com/clusterkit/raftkv/internal/raft/membership"
	"github.com/clusterkit/raftkv/internal/raft/storage"
	"github.com/clusterkit/raftkv/internal/types"
)

// newSingletonAPI starts a one-node cluster that leads itself, so writes
// commit locally without any peers.
func newSingletonAPI(t *testing.T, lead bool) (*httptest.Server, *raft.Node) {
	t.Helper()
	ctx := context.Background()

	sm := kvsm.New()
	cfg := raft.Config{
		ID:   1,
		Addr: "127.0.0.1:8080",
		Timing: raft.TimingConfig{
			ElectionTimeoutMin: 5 * time.Second,
			ElectionTimeoutMax: 10 * time.Second,
			HeartbeatInterval:  20 * time.Millisecond,
		},
		Rand: rand.New(rand.NewSource(1)),
	}
	node, err := raft.NewNode(cfg, storage.NewMemStableStore(), storage.NewMemLogStore(), membership.New(nil), nil, sm)
	if err != nil {
		t.Fatal(err)
	}
	node.Start(ctx)
	t.Cleanup(func() { node.Stop(ctx) })

	if lead {
		node.StartElection()
		if !node.IsLeader() {
			t.Fatal("singleton node should lead itself")
		}
	}

	api := New(clusterkv.New(node, sm))
	ts := httptest.NewServer(api.Handler())
	t.Cleanup(ts.Close)
	return ts, node
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatal(err)
	}
}

func TestHealthzAndStatus(t *testing.T) {
	ts, _ := newSingletonAPI(t, true)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatal(err)
	}
	var st types.NodeStatus
	decodeBody(t, resp, &st)
	if st.Role != raft.RoleLeader {
		t.Fatalf("expected leader, got %s", st.Role)
	}
	if st.Term != 1 {
		t.Fatalf("expected term 1, got %d", st.Term)
	}
}

func TestKVRoundTrip(t *testing.T) {
	ts, _ := newSingletonAPI(t, true)

	resp := doJSON(t, http.MethodPut, ts.URL+"/kv/foo", map[string]any{"value": "bar"})
	if resp.StatusCode != 200 {
		t.Fatalf("put: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var got struct {
		Ok    bool   `json:"ok"`
		Value string `json:"value"`
	}
	resp, err := http.Get(ts.URL + "/kv/foo")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &got)
	if !got.Ok || got.Value != "bar" {
		t.Fatalf("get mismatch: %+v", got)
	}

	resp, err = http.Get(ts.URL + "/kv/missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/kv/mget", map[string]any{"keys": []string{"foo"}})
	var mget struct {
		Ok     bool              `json:"ok"`
		Values map[string]string `json:"values"`
	}
	decodeBody(t, resp, &mget)
	if mget.Values["foo"] != "bar" {
		t.Fatalf("mget mismatch: %+v", mget)
	}

	resp = doJSON(t, http.MethodDelete, ts.URL+"/kv/foo", map[string]any{})
	if resp.StatusCode != 200 {
		t.Fatalf("delete: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestJoinEndpoint(t *testing.T) {
	ts, node := newSingletonAPI(t, true)

	resp := doJSON(t, http.MethodPost, ts.URL+"/cluster/join", map[string]string{"addr": "not-an-address"})
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for bad address, got %d", resp.StatusCode)
	}
	resp.Body.Close()
	if len(node.Members()) != 0 {
		t.Fatal("failed join must not mutate membership")
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/cluster/join", map[string]string{"addr": "127.0.0.1:9001"})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	var members struct {
		Ok      bool     `json:"ok"`
		Members []string `json:"members"`
	}
	r, err := http.Get(ts.URL + "/cluster/members")
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, r, &members)
	if len(members.Members) != 1 || members.Members[0] != "127.0.0.1:9001" {
		t.Fatalf("members mismatch: %+v", members)
	}
}

func TestWritesRedirectWhenNotLeader(t *testing.T) {
	ts, _ := newSingletonAPI(t, false)

	resp := doJSON(t, http.MethodPut, ts.URL+"/kv/foo", map[string]any{"value": "bar"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", resp.StatusCode)
	}
}
