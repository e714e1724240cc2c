package clusterkv

import (
	"context"
	"testing"

	"github.com/clusterkit/raftkv/internal/kvsm"
	"github.com/clusterkit/raftkv/internal/types"
)

type mockRaftNode struct {
	leader     bool
	leaderHint types.LeaderHint
	lastCmd    types.Command
	lastJoin   []byte
	members    []string
}

func (m *mockRaftNode) Propose(_ context.Context, cmd types.Command) (types.ApplyResult, error) {
	m.lastCmd = cmd
	return types.ApplyResult{Ok: true}, nil
}

func (m *mockRaftNode) HandleJoin(_ context.Context, raw []byte) (string, error) {
	m.lastJoin = raw
	m.members = append(m.members, string(raw))
	return string(raw), nil
}

func (m *mockRaftNode) IsLeader() bool {
	return m.leader
}

func (m *mockRaftNode) LeaderHint() types.LeaderHint {
	return m.leaderHint
}

func (m *mockRaftNode) Status() types.NodeStatus {
	return types.NodeStatus{Members: m.members}
}

func (m *mockRaftNode) Members() []string {
	return m.members
}

func TestWritesCallPropose(t *testing.T) {
	sm := kvsm.New()
	node := &mockRaftNode{leader: true}
	ckv := New(node, sm)

	ctx := context.Background()

	res, err := ckv.Put(ctx, types.Command{Key: "k", Value: "v"})
	if err != nil || !res.Ok {
		t.Fatalf("put: err=%v res=%+v", err, res)
	}
	if node.lastCmd.Op != types.OpPut {
		t.Fatalf("expected OpPut, got %v", node.lastCmd.Op)
	}

	res, err = ckv.Delete(ctx, types.Command{Key: "k"})
	if err != nil || !res.Ok {
		t.Fatalf("delete: err=%v", err)
	}
	if node.lastCmd.Op != types.OpDelete {
		t.Fatalf("expected OpDelete, got %v", node.lastCmd.Op)
	}

	res, err = ckv.CAS(ctx, types.Command{Key: "k", Expected: "", Value: "v2"})
	if err != nil || !res.Ok {
		t.Fatalf("cas: err=%v", err)
	}
	if node.lastCmd.Op != types.OpCAS {
		t.Fatalf("expected OpCAS, got %v", node.lastCmd.Op)
	}

	res, err = ckv.MPut(ctx, types.Command{Entries: []types.Entry{{Key: "a", Value: "1"}}})
	if err != nil || !res.Ok {
		t.Fatalf("mput: err=%v", err)
	}
	if node.lastCmd.Op != types.OpBatchPut {
		t.Fatalf("expected OpBatchPut, got %v", node.lastCmd.Op)
	}

	res, err = ckv.MDelete(ctx, types.Command{Keys: []string{"a"}})
	if err != nil || !res.Ok {
		t.Fatalf("mdelete: err=%v", err)
	}
	if node.lastCmd.Op != types.OpBatchDelete {
		t.Fatalf("expected OpBatchDelete, got %v", node.lastCmd.Op)
	}
}

func TestReadsAreLocalFromSM(t *testing.T) {
	sm := kvsm.New()
	// Write directly to SM (simulating applied raft log)
	sm.Apply(types.Command{Op: types.OpPut, Key: "k1", Value: "v1"})
	sm.Apply(types.Command{Op: types.OpPut, Key: "k2", Value: "v2"})

	node := &mockRaftNode{leader: false}
	ckv := New(node, sm)

	// Reads come from the local SM regardless of leader status
	v, ok := ckv.Get("k1")
	if !ok || v != "v1" {
		t.Fatalf("get: expected v1, got %q", v)
	}

	vals := ckv.MGet([]string{"k1", "k2", "missing"})
	if vals["k1"] != "v1" || vals["k2"] != "v2" {
		t.Fatalf("mget mismatch: %v", vals)
	}
	if _, exists := vals["missing"]; exists {
		t.Fatal("missing key should not be in mget result")
	}

	all := ckv.All()
	if len(all) != 2 {
		t.Fatalf("all mismatch: %v", all)
	}
}

func TestJoinPassesThrough(t *testing.T) {
	node := &mockRaftNode{}
	ckv := New(node, kvsm.New())

	addr, err := ckv.Join(context.Background(), []byte("127.0.0.1:9001"))
	if err != nil || addr != "127.0.0.1:9001" {
		t.Fatalf("join: addr=%q err=%v", addr, err)
	}
	if string(node.lastJoin) != "127.0.0.1:9001" {
		t.Fatalf("payload mismatch: %q", node.lastJoin)
	}
	if got := ckv.Members(); len(got) != 1 {
		t.Fatalf("members mismatch: %v", got)
	}
}
