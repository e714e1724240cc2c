package kvsm

import (
	"sort"
	"sync"

	"golang.org/x/exp/maps"

	"github.com/clusterkit/raftkv/internal/types"
)

// StateMachine is the user-defined state that committed log entries are
// applied to. The consensus core only decides what is committed and when;
// applying is a pass-through to this collaborator.
type StateMachine interface {
	Apply(cmd types.Command) types.ApplyResult
}

// DedupeRecord tracks the last applied sequence for a client.
type DedupeRecord struct {
	LastSeq   uint64            `json:"last_seq"`
	LastReply types.ApplyResult `json:"last_reply"`
}

// KVStateMachine is a deterministic, thread-safe key-value state machine.
type KVStateMachine struct {
	mu     sync.Mutex
	kv     map[string]string
	dedupe map[string]DedupeRecord
}

// New creates a new KVStateMachine.
func New() *KVStateMachine {
	return &KVStateMachine{
		kv:     make(map[string]string),
		dedupe: make(map[string]DedupeRecord),
	}
}

// Apply applies a command to the state machine.
func (sm *KVStateMachine) Apply(cmd types.Command) types.ApplyResult {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Deduplication check
	if cmd.ClientID != "" && cmd.Seq != 0 {
		if rec, ok := sm.dedupe[cmd.ClientID]; ok && rec.LastSeq >= cmd.Seq {
			return rec.LastReply
		}
	}

	result := sm.applyUnlocked(cmd)

	// Store dedupe record
	if cmd.ClientID != "" && cmd.Seq != 0 {
		sm.dedupe[cmd.ClientID] = DedupeRecord{
			LastSeq:   cmd.Seq,
			LastReply: result,
		}
	}

	return result
}

func (sm *KVStateMachine) applyUnlocked(cmd types.Command) types.ApplyResult {
	switch cmd.Op {
	case types.OpPut:
		if cmd.Key == "" {
			return types.ApplyResult{Ok: false, ErrCode: "bad_request", ErrMsg: "key is required"}
		}
		sm.kv[cmd.Key] = cmd.Value
		return types.ApplyResult{Ok: true}

	case types.OpDelete:
		if cmd.Key == "" {
			return types.ApplyResult{Ok: false, ErrCode: "bad_request", ErrMsg: "key is required"}
		}
		deleted := 0
		if _, exists := sm.kv[cmd.Key]; exists {
			delete(sm.kv, cmd.Key)
			deleted = 1
		}
		return types.ApplyResult{Ok: true, Deleted: deleted}

	case types.OpCAS:
		if cmd.Key == "" {
			return types.ApplyResult{Ok: false, ErrCode: "bad_request", ErrMsg: "key is required"}
		}
		current := sm.kv[cmd.Key] // missing key returns ""
		if current != cmd.Expected {
			return types.ApplyResult{Ok: false, ErrCode: "cas_failed"}
		}
		sm.kv[cmd.Key] = cmd.Value
		return types.ApplyResult{Ok: true}

	case types.OpBatchPut:
		if len(cmd.Entries) == 0 {
			return types.ApplyResult{Ok: false, ErrCode: "bad_request", ErrMsg: "entries is required"}
		}
		for _, e := range cmd.Entries {
			sm.kv[e.Key] = e.Value
		}
		return types.ApplyResult{Ok: true}

	case types.OpBatchDelete:
		if len(cmd.Keys) == 0 {
			return types.ApplyResult{Ok: false, ErrCode: "bad_request", ErrMsg: "keys is required"}
		}
		deleted := 0
		for _, k := range cmd.Keys {
			if _, exists := sm.kv[k]; exists {
				delete(sm.kv, k)
				deleted++
			}
		}
		return types.ApplyResult{Ok: true, Deleted: deleted}

	default:
		return types.ApplyResult{Ok: false, ErrCode: "bad_request", ErrMsg: "unknown operation"}
	}
}

// Get returns the value for a key.
func (sm *KVStateMachine) Get(key string) (string, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	v, ok := sm.kv[key]
	return v, ok
}

// MGet returns values for multiple keys (cloned map).
func (sm *KVStateMachine) MGet(keys []string) map[string]string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	result := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := sm.kv[k]; ok {
			result[k] = v
		}
	}
	return result
}

// All returns a copy of the full key space.
func (sm *KVStateMachine) All() map[string]string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return maps.Clone(sm.kv)
}

// Keys returns all keys in sorted order.
func (sm *KVStateMachine) Keys() []string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	keys := maps.Keys(sm.kv)
	sort.Strings(keys)
	return keys
}

// LastSeen returns the last sequence number seen for a client.
func (sm *KVStateMachine) LastSeen(clientID string) (uint64, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	rec, ok := sm.dedupe[clientID]
	if !ok {
		return 0, false
	}
	return rec.LastSeq, true
}
