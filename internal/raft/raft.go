// Package raft implements the consensus core: term and vote bookkeeping, the
// election campaign, log replication with commit advancement, and membership
// growth. All protocol state lives behind one mutex; the election timer and
// the inbound RPC handlers both drive transitions through it.
package raft

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/clusterkit/raftkv/internal/kvsm"
	"github.com/clusterkit/raftkv/internal/raft/membership"
	"github.com/clusterkit/raftkv/internal/raft/storage"
	"github.com/clusterkit/raftkv/internal/raft/transporthttp"
	"github.com/clusterkit/raftkv/internal/types"
)

const (
	RoleLeader    = "leader"
	RoleFollower  = "follower"
	RoleCandidate = "candidate"
)

var ErrNotLeader = errors.New("not leader")

// VoteRule selects how RequestVote decides whether to grant.
type VoteRule int

const (
	// VoteRuleSelfAffirm grants only when this node's current-term vote
	// record designates itself. This matches the observed protocol; it does
	// not compare the incoming candidate against the vote record.
	VoteRuleSelfAffirm VoteRule = iota
	// VoteRuleCanonical grants to the first candidate that asks in a term,
	// or to a repeated request from that same candidate.
	VoteRuleCanonical
)

// TimingConfig holds configurable timing parameters for elections and heartbeats.
type TimingConfig struct {
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
}

// DefaultTimingConfig returns sensible defaults for production.
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
	}
}

// Config holds configuration for a Raft node.
type Config struct {
	ID       types.NodeID
	Addr     string // this node's advertised host:port
	VoteRule VoteRule
	Timing   TimingConfig
	Rand     *rand.Rand // optional: for deterministic randomness in tests
}

// Node is a Raft node.
type Node struct {
	cfg     Config
	stable  storage.StableStore
	log     storage.LogStore
	tp      transporthttp.Transport
	sm      kvsm.StateMachine
	members *membership.Membership

	mu          sync.Mutex
	role        string
	currentTerm uint64
	votedFor    types.NodeID
	hasVote     bool
	leaderHint  types.LeaderHint
	commitIndex uint64
	lastApplied uint64

	matchIndex map[string]uint64
	nextIndex  map[string]uint64

	// timers and goroutines
	applierDone     chan struct{}
	applierCh       chan struct{}
	cancel          context.CancelFunc
	ctx             context.Context
	electionResetCh chan struct{}
	heartbeatStopCh chan struct{}

	// pending proposals waiting for apply
	pendingMu sync.Mutex
	pending   map[uint64]chan types.ApplyResult

	// random source
	rand *rand.Rand
}

// NewNode creates a new Raft node.
func NewNode(cfg Config, stable storage.StableStore, logStore storage.LogStore, members *membership.Membership, tp transporthttp.Transport, sm kvsm.StateMachine) (*Node, error) {
	term, err := stable.GetCurrentTerm()
	if err != nil {
		return nil, err
	}

	votedFor, hasVote, err := stable.GetVotedFor()
	if err != nil {
		return nil, err
	}

	if cfg.Timing.ElectionTimeoutMin == 0 {
		cfg.Timing = DefaultTimingConfig()
	}

	r := cfg.Rand
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if members == nil {
		members = membership.New(nil)
	}

	n := &Node{
		cfg:             cfg,
		stable:          stable,
		log:             logStore,
		tp:              tp,
		sm:              sm,
		members:         members,
		role:            RoleFollower,
		currentTerm:     term,
		votedFor:        votedFor,
		hasVote:         hasVote,
		matchIndex:      make(map[string]uint64),
		nextIndex:       make(map[string]uint64),
		applierCh:       make(chan struct{}, 1),
		pending:         make(map[uint64]chan types.ApplyResult),
		electionResetCh: make(chan struct{}, 1),
		rand:            r,
	}

	return n, nil
}

// Start starts the applier loop and election timer.
func (n *Node) Start(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)
	n.applierDone = make(chan struct{})
	go n.applierLoop()
	go n.electionLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop(ctx context.Context) error {
	n.cancel()
	<-n.applierDone
	return nil
}

func (n *Node) IsLeader() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.role == RoleLeader
}

func (n *Node) LeaderHint() types.LeaderHint {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.leaderHint
}

// Members returns the current peer address set.
func (n *Node) Members() []string {
	return n.members.Snapshot()
}

func (n *Node) Status() types.NodeStatus {
	n.mu.Lock()
	defer n.mu.Unlock()
	lastIdx, _ := n.log.LastIndex()
	return types.NodeStatus{
		ID:          n.cfg.ID,
		Role:        n.role,
		Term:        n.currentTerm,
		CommitIndex: n.commitIndex,
		LastApplied: n.lastApplied,
		LastIndex:   lastIdx,
		LeaderHint:  n.leaderHint,
		Members:     n.members.Snapshot(),
	}
}

func (n *Node) randomElectionTimeout() time.Duration {
	min := n.cfg.Timing.ElectionTimeoutMin
	max := n.cfg.Timing.ElectionTimeoutMax
	delta := max - min
	if delta <= 0 {
		return min
	}
	return min + time.Duration(n.rand.Int63n(int64(delta)))
}

func (n *Node) resetElectionTimer() {
	select {
	case n.electionResetCh <- struct{}{}:
	default:
	}
}

// electionLoop waits on a resettable timer. Each arm draws a fresh random
// duration; any relevant event (valid AppendEntries, granted vote, campaign
// start) reset-signals it.
func (n *Node) electionLoop() {
	timer := time.NewTimer(n.randomElectionTimeout())
	defer timer.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.electionResetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(n.randomElectionTimeout())
		case <-timer.C:
			n.mu.Lock()
			role := n.role
			n.mu.Unlock()
			if role != RoleLeader {
				n.StartElection()
			}
			timer.Reset(n.randomElectionTimeout())
		}
	}
}

// StartElection runs one campaign: it bumps the term, votes for itself,
// solicits votes from every known peer concurrently and tallies the replies.
// Normally driven by the election timer; exported so a harness can trigger a
// campaign directly.
func (n *Node) StartElection() {
	n.mu.Lock()
	n.currentTerm++
	n.role = RoleCandidate
	n.votedFor = n.cfg.ID
	n.hasVote = true
	term := n.currentTerm
	if err := n.stable.SetCurrentTerm(term); err != nil {
		log.Printf("raft: node %d record term %d: %v", n.cfg.ID, term, err)
	}
	if err := n.stable.SetVotedFor(n.cfg.ID); err != nil {
		log.Printf("raft: node %d record self-vote: %v", n.cfg.ID, err)
	}

	// Quorum is fixed against the membership snapshot at campaign start; a
	// concurrent Join does not change this campaign's threshold.
	peers := n.members.Snapshot()
	n.mu.Unlock()

	n.resetElectionTimer()

	req := transporthttp.RequestVoteRequest{
		Term:        term,
		CandidateID: n.cfg.ID,
	}

	votes := 1 // vote for self
	majority := membership.Quorum(len(peers))

	type voteResult struct {
		resp transporthttp.RequestVoteResponse
		err  error
	}
	results := make(chan voteResult, len(peers))

	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Timing.ElectionTimeoutMin)
	defer cancel()

	for _, p := range peers {
		go func(addr string) {
			if n.tp == nil {
				results <- voteResult{err: fmt.Errorf("no transport")}
				return
			}
			resp, err := n.tp.RequestVote(ctx, addr, req)
			results <- voteResult{resp, err}
		}(p)
	}

tally:
	for range peers {
		select {
		case <-ctx.Done():
			// Peers still silent at the deadline count as unreachable;
			// tally the replies that did arrive.
			break tally
		case vr := <-results:
			if vr.err != nil {
				// Unreachable peer: excluded from the tally, no retry
				// within this term.
				continue
			}
			if vr.resp.Term > term {
				n.stepDown(vr.resp.Term)
				return
			}
			if vr.resp.VoteGranted {
				votes++
				if votes >= majority {
					break tally
				}
			}
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// Check we're still candidate for the same term
	if n.role != RoleCandidate || n.currentTerm != term {
		return
	}

	if votes >= majority {
		log.Printf("raft: node %d won election for term %d with %d/%d votes", n.cfg.ID, term, votes, len(peers)+1)
		n.becomeLeader(peers)
	}
}

func (n *Node) becomeLeader(peers []string) {
	n.role = RoleLeader
	n.leaderHint = types.LeaderHint{LeaderID: n.cfg.ID, LeaderAddr: n.cfg.Addr}

	lastIdx, _ := n.log.LastIndex()
	for _, p := range peers {
		n.nextIndex[p] = lastIdx + 1
		n.matchIndex[p] = 0
	}

	// Start heartbeat goroutine
	n.heartbeatStopCh = make(chan struct{})
	go n.heartbeatLoop()
}

func (n *Node) heartbeatLoop() {
	ticker := time.NewTicker(n.cfg.Timing.HeartbeatInterval)
	defer ticker.Stop()

	// Send initial heartbeat immediately
	n.sendHeartbeats()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.heartbeatStopCh:
			return
		case <-ticker.C:
			n.mu.Lock()
			isLeader := n.role == RoleLeader
			n.mu.Unlock()
			if !isLeader {
				return
			}
			n.sendHeartbeats()
		}
	}
}

// sendHeartbeats pushes an empty AppendEntries to every peer. The membership
// is re-read each round so an address added by Join starts receiving
// heartbeats on the next tick.
func (n *Node) sendHeartbeats() {
	n.mu.Lock()
	if n.role != RoleLeader {
		n.mu.Unlock()
		return
	}
	term := n.currentTerm
	commitIndex := n.commitIndex
	peers := n.members.Snapshot()
	n.mu.Unlock()

	req := transporthttp.AppendEntriesRequest{
		Term:       term,
		LeaderID:   n.cfg.ID,
		LeaderAddr: n.cfg.Addr,
		PrevIndex:  commitIndex,
		Commit:     commitIndex,
	}

	for _, p := range peers {
		go func(addr string) {
			if n.tp == nil {
				return
			}
			ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Timing.HeartbeatInterval)
			defer cancel()
			resp, err := n.tp.AppendEntries(ctx, addr, req)
			if err != nil {
				return
			}
			if resp.Term > term {
				n.stepDown(resp.Term)
				return
			}
			if !resp.Success {
				// The peer is behind the consistency gate; repair it.
				n.repairPeer(addr, term)
			}
		}(p)
	}
}

// repairPeer retries replication to a lagging peer, retreating prevIndex
// until the peer accepts, then advances the commit index if a majority has
// caught up.
func (n *Node) repairPeer(addr string, term uint64) {
	ctx, cancel := context.WithTimeout(n.ctx, n.cfg.Timing.ElectionTimeoutMin)
	defer cancel()

	for attempt := 0; attempt < 10; attempt++ {
		n.mu.Lock()
		stillLeader := n.role == RoleLeader && n.currentTerm == term
		n.mu.Unlock()
		if !stillLeader {
			return
		}

		success, _ := n.replicateToPeer(ctx, addr)
		if success {
			n.advanceCommitIndex()
			n.signalApplier()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// replicateToPeer sends one AppendEntries carrying everything from the
// peer's nextIndex onward. A false reply with an equal term means the peer's
// commit progress is behind prevIndex; nextIndex retreats and the caller
// retries.
func (n *Node) replicateToPeer(ctx context.Context, addr string) (success bool, matchIdx uint64) {
	n.mu.Lock()
	if n.role != RoleLeader {
		n.mu.Unlock()
		return false, 0
	}
	term := n.currentTerm
	commitIndex := n.commitIndex
	lastIdx, _ := n.log.LastIndex()

	nextIdx, ok := n.nextIndex[addr]
	if !ok || nextIdx == 0 {
		// A peer admitted by Join after this node became leader.
		nextIdx = lastIdx + 1
		n.nextIndex[addr] = nextIdx
	}
	prevIndex := nextIdx - 1

	var entries []storage.LogEntry
	if nextIdx <= lastIdx {
		var err error
		entries, err = n.log.ReadRange(nextIdx, lastIdx)
		if err != nil {
			n.mu.Unlock()
			return false, 0
		}
	}
	n.mu.Unlock()

	req := transporthttp.AppendEntriesRequest{
		Term:       term,
		LeaderID:   n.cfg.ID,
		LeaderAddr: n.cfg.Addr,
		PrevIndex:  prevIndex,
		Entries:    entries,
		Commit:     commitIndex,
	}

	if n.tp == nil {
		return false, 0
	}

	resp, err := n.tp.AppendEntries(ctx, addr, req)
	if err != nil {
		return false, 0
	}

	if resp.Term > term {
		n.stepDown(resp.Term)
		return false, 0
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	// Check if we're still leader for the same term
	if n.role != RoleLeader || n.currentTerm != term {
		return false, 0
	}

	if resp.Success {
		newMatchIdx := prevIndex + uint64(len(entries))
		if newMatchIdx > n.matchIndex[addr] {
			n.matchIndex[addr] = newMatchIdx
		}
		n.nextIndex[addr] = newMatchIdx + 1
		return true, newMatchIdx
	}

	// Rejected: retreat nextIndex and let the caller retry with an earlier
	// prevIndex.
	if n.nextIndex[addr] > 1 {
		n.nextIndex[addr] = nextIdx - 1
	}
	if n.nextIndex[addr] < 1 {
		n.nextIndex[addr] = 1
	}

	return false, 0
}

// advanceCommitIndex moves the commit index forward over every entry of the
// current term that a majority holds. The commit index never moves backward.
func (n *Node) advanceCommitIndex() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.role != RoleLeader {
		return
	}

	lastIdx, _ := n.log.LastIndex()
	peers := n.members.Snapshot()

	for idx := n.commitIndex + 1; idx <= lastIdx; idx++ {
		// Only entries from the current term are committed by counting.
		term, err := n.log.TermAt(idx)
		if err != nil || term != n.currentTerm {
			continue
		}

		replicaCount := 1 // self
		for _, p := range peers {
			if n.matchIndex[p] >= idx {
				replicaCount++
			}
		}

		if replicaCount >= membership.Quorum(len(peers)) {
			n.commitIndex = idx
		}
	}
}

// stepDown adopts a higher term observed from any source and reverts to
// follower, abandoning any candidacy or leadership.
func (n *Node) stepDown(newTerm uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if newTerm < n.currentTerm {
		// Stale observation from an earlier campaign.
		return
	}
	if newTerm > n.currentTerm {
		n.adoptTermLocked(newTerm)
	}
	n.stopLeadingLocked()
	n.role = RoleFollower
}

// adoptTermLocked moves to a higher term and clears the vote record for it.
// Caller holds n.mu.
func (n *Node) adoptTermLocked(newTerm uint64) {
	n.currentTerm = newTerm
	if err := n.stable.SetCurrentTerm(newTerm); err != nil {
		log.Printf("raft: node %d record term %d: %v", n.cfg.ID, newTerm, err)
	}
	n.votedFor = 0
	n.hasVote = false
	if err := n.stable.ClearVotedFor(); err != nil {
		log.Printf("raft: node %d clear vote record: %v", n.cfg.ID, err)
	}
}

// stopLeadingLocked halts the heartbeat loop if one is running. Caller holds n.mu.
func (n *Node) stopLeadingLocked() {
	if n.role == RoleLeader && n.heartbeatStopCh != nil {
		close(n.heartbeatStopCh)
		n.heartbeatStopCh = nil
	}
}

// Propose proposes a command. Only valid on the leader.
func (n *Node) Propose(ctx context.Context, cmd types.Command) (types.ApplyResult, error) {
	n.mu.Lock()
	if n.role != RoleLeader {
		n.mu.Unlock()
		return types.ApplyResult{}, ErrNotLeader
	}
	term := n.currentTerm

	lastIdx, err := n.log.LastIndex()
	if err != nil {
		n.mu.Unlock()
		return types.ApplyResult{}, err
	}

	newIdx := lastIdx + 1
	entry := storage.LogEntry{Index: newIdx, Term: term, Cmd: cmd}
	if err := n.log.Append([]storage.LogEntry{entry}); err != nil {
		n.mu.Unlock()
		return types.ApplyResult{}, err
	}

	peers := n.members.Snapshot()
	n.mu.Unlock()

	// Register pending proposal
	resultCh := make(chan types.ApplyResult, 1)
	n.pendingMu.Lock()
	n.pending[newIdx] = resultCh
	n.pendingMu.Unlock()
	defer func() {
		n.pendingMu.Lock()
		delete(n.pending, newIdx)
		n.pendingMu.Unlock()
	}()

	// Replicate to all peers, retrying while the consistency gate rejects us.
	type peerResult struct {
		addr    string
		success bool
	}
	results := make(chan peerResult, len(peers))

	for _, p := range peers {
		go func(addr string) {
			for attempt := 0; attempt < 10; attempt++ {
				select {
				case <-ctx.Done():
					results <- peerResult{addr: addr}
					return
				default:
				}

				success, _ := n.replicateToPeer(ctx, addr)
				if success {
					results <- peerResult{addr: addr, success: true}
					return
				}

				n.mu.Lock()
				stillLeader := n.role == RoleLeader && n.currentTerm == term
				n.mu.Unlock()
				if !stillLeader {
					results <- peerResult{addr: addr}
					return
				}

				select {
				case <-ctx.Done():
					results <- peerResult{addr: addr}
					return
				case <-time.After(10 * time.Millisecond):
				}
			}
			results <- peerResult{addr: addr}
		}(p)
	}

	// Collect results
	successCount := 1 // count self
	majority := membership.Quorum(len(peers))

	for range peers {
		select {
		case pr := <-results:
			if pr.success {
				successCount++
			}
		case <-ctx.Done():
			return types.ApplyResult{}, ctx.Err()
		}
	}

	// Check if still leader
	n.mu.Lock()
	if n.role != RoleLeader || n.currentTerm != term {
		n.mu.Unlock()
		return types.ApplyResult{}, ErrNotLeader
	}
	n.mu.Unlock()

	if successCount < majority {
		return types.ApplyResult{}, fmt.Errorf("failed to replicate to majority: %d/%d", successCount, majority)
	}

	n.advanceCommitIndex()
	n.signalApplier()

	// Push the new commit index out so followers can apply.
	n.mu.Lock()
	commitIndex := n.commitIndex
	n.mu.Unlock()

	for _, p := range peers {
		if n.tp != nil {
			go func(addr string) {
				commitNotify := transporthttp.AppendEntriesRequest{
					Term:       term,
					LeaderID:   n.cfg.ID,
					LeaderAddr: n.cfg.Addr,
					PrevIndex:  0,
					Commit:     commitIndex,
				}
				n.tp.AppendEntries(ctx, addr, commitNotify)
			}(p)
		}
	}

	// Wait for apply
	select {
	case res := <-resultCh:
		return res, nil
	case <-ctx.Done():
		return types.ApplyResult{}, ctx.Err()
	}
}

// HandleRequestVote handles an incoming RequestVote RPC. The reply always
// carries the current (possibly just-adopted) term.
func (n *Node) HandleRequestVote(ctx context.Context, req transporthttp.RequestVoteRequest) (transporthttp.RequestVoteResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term > n.currentTerm {
		n.stopLeadingLocked()
		n.adoptTermLocked(req.Term)
		n.role = RoleFollower
	}

	// Stale candidate: reject and tell it the current term.
	if req.Term < n.currentTerm {
		return transporthttp.RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}, nil
	}

	switch n.cfg.VoteRule {
	case VoteRuleCanonical:
		if !n.hasVote || n.votedFor == req.CandidateID {
			n.votedFor = req.CandidateID
			n.hasVote = true
			if err := n.stable.SetVotedFor(req.CandidateID); err != nil {
				log.Printf("raft: node %d record vote for %d: %v", n.cfg.ID, req.CandidateID, err)
			}
			n.resetElectionTimer()
			return transporthttp.RequestVoteResponse{Term: n.currentTerm, VoteGranted: true}, nil
		}
		return transporthttp.RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}, nil

	default: // VoteRuleSelfAffirm
		if n.hasVote && n.votedFor == n.cfg.ID {
			return transporthttp.RequestVoteResponse{Term: n.currentTerm, VoteGranted: true}, nil
		}
		return transporthttp.RequestVoteResponse{Term: n.currentTerm, VoteGranted: false}, nil
	}
}

// HandleAppendEntries handles an incoming AppendEntries RPC. An empty entry
// payload is a heartbeat.
func (n *Node) HandleAppendEntries(ctx context.Context, req transporthttp.AppendEntriesRequest) (transporthttp.AppendEntriesResponse, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if req.Term > n.currentTerm {
		n.stopLeadingLocked()
		n.adoptTermLocked(req.Term)
		n.role = RoleFollower
	}

	// Stale leader: reject.
	if req.Term < n.currentTerm {
		return transporthttp.AppendEntriesResponse{Term: n.currentTerm, Success: false}, nil
	}

	// Current leader is alive: suppress elections and remember it.
	n.resetElectionTimer()
	n.leaderHint = types.LeaderHint{LeaderID: req.LeaderID, LeaderAddr: req.LeaderAddr}
	if n.role == RoleCandidate {
		n.role = RoleFollower
	}

	// Consistency gate: the leader must not start ahead of our commit
	// progress. It retries with an earlier index when rejected.
	if req.PrevIndex > n.commitIndex {
		return transporthttp.AppendEntriesResponse{Term: n.currentTerm, Success: false}, nil
	}

	if len(req.Entries) > 0 {
		if err := n.storeEntriesLocked(req.Entries); err != nil {
			return transporthttp.AppendEntriesResponse{Term: n.currentTerm, Success: false}, nil
		}
	}

	// Advance the commit index, never past the last entry actually held and
	// never backward.
	lastIdx, _ := n.log.LastIndex()
	if req.Commit > n.commitIndex {
		newCommit := req.Commit
		if lastIdx < newCommit {
			newCommit = lastIdx
		}
		if newCommit > n.commitIndex {
			n.commitIndex = newCommit
		}
	}

	n.signalApplier()

	return transporthttp.AppendEntriesResponse{Term: n.currentTerm, Success: true}, nil
}

// storeEntriesLocked appends entries, overwriting a conflicting uncommitted
// suffix. Committed entries are immutable. Caller holds n.mu.
func (n *Node) storeEntriesLocked(entries []storage.LogEntry) error {
	lastIdx, _ := n.log.LastIndex()

	for i, entry := range entries {
		if entry.Index <= lastIdx {
			existingTerm, err := n.log.TermAt(entry.Index)
			if err == nil && existingTerm == entry.Term {
				// Already holds this entry.
				continue
			}
			if entry.Index <= n.commitIndex {
				return fmt.Errorf("refusing to overwrite committed entry %d", entry.Index)
			}
			if err := n.log.DeleteFrom(entry.Index); err != nil {
				return err
			}
			return n.log.Append(entries[i:])
		}
		return n.log.Append(entries[i:])
	}
	return nil
}

// HandleJoin admits a new member address carried as raw UTF-8 bytes. The
// address is a fanout target for the next campaign and heartbeat round.
func (n *Node) HandleJoin(ctx context.Context, raw []byte) (string, error) {
	addr, err := n.members.Join(raw)
	if err != nil {
		return "", err
	}
	log.Printf("raft: node %d admitted member %s", n.cfg.ID, addr)
	return addr, nil
}

func (n *Node) signalApplier() {
	select {
	case n.applierCh <- struct{}{}:
	default:
	}
}

func (n *Node) applierLoop() {
	defer close(n.applierDone)
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-n.applierCh:
			n.applyPending()
		}
	}
}

func (n *Node) applyPending() {
	for {
		n.mu.Lock()
		if n.lastApplied >= n.commitIndex {
			n.mu.Unlock()
			return
		}
		lo := n.lastApplied + 1
		hi := n.commitIndex
		n.mu.Unlock()

		entries, err := n.log.ReadRange(lo, hi)
		if err != nil {
			return
		}

		for _, e := range entries {
			result := n.sm.Apply(e.Cmd)

			n.mu.Lock()
			n.lastApplied = e.Index
			n.mu.Unlock()

			// Notify pending proposal if any
			n.pendingMu.Lock()
			if ch, ok := n.pending[e.Index]; ok {
				ch <- result
			}
			n.pendingMu.Unlock()
		}
	}
}

// RaftHTTPHandler returns the Raft RPC HTTP handler for this node.
func (n *Node) RaftHTTPHandler() *transporthttp.RaftHTTPServer {
	return transporthttp.NewRaftHTTPServer(n)
}
