package clusterkv

import (
	"context"

	"github.com/clusterkit/raftkv/internal/kvsm"
	"github.com/clusterkit/raftkv/internal/types"
)

// RaftNodeIface is the subset of raft.Node that ClusterKV needs.
type RaftNodeIface interface {
	Propose(ctx context.Context, cmd types.Command) (types.ApplyResult, error)
	HandleJoin(ctx context.Context, raw []byte) (string, error)
	IsLeader() bool
	LeaderHint() types.LeaderHint
	Status() types.NodeStatus
	Members() []string
}

// ClusterKV wraps the Raft node and the applied state machine into a single
// API for the HTTP layer. Reads are served from the local state machine and
// may be stale; writes go through consensus.
type ClusterKV struct {
	node RaftNodeIface
	sm   *kvsm.KVStateMachine
}

// New creates a new ClusterKV.
func New(node RaftNodeIface, sm *kvsm.KVStateMachine) *ClusterKV {
	return &ClusterKV{node: node, sm: sm}
}

func (c *ClusterKV) IsLeader() bool {
	return c.node.IsLeader()
}

func (c *ClusterKV) LeaderHint() types.LeaderHint {
	return c.node.LeaderHint()
}

func (c *ClusterKV) Status() types.NodeStatus {
	return c.node.Status()
}

func (c *ClusterKV) Members() []string {
	return c.node.Members()
}

// Join admits a new member address into the cluster.
func (c *ClusterKV) Join(ctx context.Context, raw []byte) (string, error) {
	return c.node.HandleJoin(ctx, raw)
}

// --- Reads (local state machine) ---

func (c *ClusterKV) Get(key string) (string, bool) {
	return c.sm.Get(key)
}

func (c *ClusterKV) MGet(keys []string) map[string]string {
	return c.sm.MGet(keys)
}

func (c *ClusterKV) All() map[string]string {
	return c.sm.All()
}

// --- Writes (through Raft) ---

func (c *ClusterKV) Put(ctx context.Context, cmd types.Command) (types.ApplyResult, error) {
	cmd.Op = types.OpPut
	return c.node.Propose(ctx, cmd)
}

func (c *ClusterKV) Delete(ctx context.Context, cmd types.Command) (types.ApplyResult, error) {
	cmd.Op = types.OpDelete
	return c.node.Propose(ctx, cmd)
}

func (c *ClusterKV) CAS(ctx context.Context, cmd types.Command) (types.ApplyResult, error) {
	cmd.Op = types.OpCAS
	return c.node.Propose(ctx, cmd)
}

func (c *ClusterKV) MPut(ctx context.Context, cmd types.Command) (types.ApplyResult, error) {
	cmd.Op = types.OpBatchPut
	return c.node.Propose(ctx, cmd)
}

func (c *ClusterKV) MDelete(ctx context.Context, cmd types.Command) (types.ApplyResult, error) {
	cmd.Op = types.OpBatchDelete
	return c.node.Propose(ctx, cmd)
}
