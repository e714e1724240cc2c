package kvsm

import (
	"testing"

	"github.com/clusterkit/raftkv/internal/types"
)

func TestApply_PutGetDelete(t *testing.T) {
	sm := New()

	res := sm.Apply(types.Command{Op: types.OpPut, Key: "k", Value: "v"})
	if !res.Ok {
		t.Fatalf("put failed: %+v", res)
	}
	v, ok := sm.Get("k")
	if !ok || v != "v" {
		t.Fatalf("expected v, got %q ok=%v", v, ok)
	}

	res = sm.Apply(types.Command{Op: types.OpDelete, Key: "k"})
	if !res.Ok || res.Deleted != 1 {
		t.Fatalf("delete failed: %+v", res)
	}
	if _, ok := sm.Get("k"); ok {
		t.Fatal("key should be gone")
	}

	// Deleting a missing key is ok with zero deletions.
	res = sm.Apply(types.Command{Op: types.OpDelete, Key: "k"})
	if !res.Ok || res.Deleted != 0 {
		t.Fatalf("expected ok with 0 deleted: %+v", res)
	}
}

func TestApply_PutWithoutKeyRejected(t *testing.T) {
	sm := New()
	res := sm.Apply(types.Command{Op: types.OpPut, Value: "v"})
	if res.Ok || res.ErrCode != "bad_request" {
		t.Fatalf("expected bad_request, got %+v", res)
	}
}

func TestApply_CAS(t *testing.T) {
	sm := New()
	sm.Apply(types.Command{Op: types.OpPut, Key: "k", Value: "old"})

	res := sm.Apply(types.Command{Op: types.OpCAS, Key: "k", Expected: "wrong", Value: "new"})
	if res.Ok || res.ErrCode != "cas_failed" {
		t.Fatalf("expected cas_failed, got %+v", res)
	}

	res = sm.Apply(types.Command{Op: types.OpCAS, Key: "k", Expected: "old", Value: "new"})
	if !res.Ok {
		t.Fatalf("cas failed: %+v", res)
	}
	v, _ := sm.Get("k")
	if v != "new" {
		t.Fatalf("expected new, got %q", v)
	}
}

func TestApply_BatchOps(t *testing.T) {
	sm := New()

	res := sm.Apply(types.Command{Op: types.OpBatchPut, Entries: []types.Entry{
		{Key: "a", Value: "1"},
		{Key: "b", Value: "2"},
	}})
	if !res.Ok {
		t.Fatalf("batch put failed: %+v", res)
	}

	vals := sm.MGet([]string{"a", "b", "missing"})
	if vals["a"] != "1" || vals["b"] != "2" {
		t.Fatalf("mget mismatch: %v", vals)
	}
	if _, exists := vals["missing"]; exists {
		t.Fatal("missing key should not be in mget result")
	}

	res = sm.Apply(types.Command{Op: types.OpBatchDelete, Keys: []string{"a", "missing"}})
	if !res.Ok || res.Deleted != 1 {
		t.Fatalf("batch delete: %+v", res)
	}
}

func TestApply_Dedupe(t *testing.T) {
	sm := New()

	first := sm.Apply(types.Command{ClientID: "c1", Seq: 1, Op: types.OpPut, Key: "k", Value: "v1"})
	if !first.Ok {
		t.Fatal("first apply failed")
	}

	// Re-applying the same sequence returns the recorded reply and does not
	// touch state.
	sm.Apply(types.Command{ClientID: "c1", Seq: 2, Op: types.OpPut, Key: "k", Value: "v2"})
	replay := sm.Apply(types.Command{ClientID: "c1", Seq: 1, Op: types.OpPut, Key: "k", Value: "stale"})
	if !replay.Ok {
		t.Fatalf("replay should return the recorded reply: %+v", replay)
	}
	v, _ := sm.Get("k")
	if v != "v2" {
		t.Fatalf("replay must not touch state, got %q", v)
	}

	seq, ok := sm.LastSeen("c1")
	if !ok || seq != 2 {
		t.Fatalf("expected last seen 2, got %d ok=%v", seq, ok)
	}
}

func TestAllAndKeys(t *testing.T) {
	sm := New()
	sm.Apply(types.Command{Op: types.OpPut, Key: "b", Value: "2"})
	sm.Apply(types.Command{Op: types.OpPut, Key: "a", Value: "1"})

	all := sm.All()
	if len(all) != 2 || all["a"] != "1" {
		t.Fatalf("all mismatch: %v", all)
	}
	all["a"] = "mutated"
	if v, _ := sm.Get("a"); v != "1" {
		t.Fatal("All returned internal map reference")
	}

	keys := sm.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("keys not sorted: %v", keys)
	}
}
