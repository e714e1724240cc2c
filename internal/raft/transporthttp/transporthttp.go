// Package transporthttp carries Raft RPCs between nodes as JSON over HTTP.
// Peers are addressed directly by their host:port membership address.
package transporthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/clusterkit/raftkv/internal/raft/membership"
	"github.com/clusterkit/raftkv/internal/raft/storage"
	"github.com/clusterkit/raftkv/internal/types"
)

// --- RPC DTOs ---

type RequestVoteRequest struct {
	Term        uint64       `json:"term"`
	CandidateID types.NodeID `json:"candidate_id"`
}

type RequestVoteResponse struct {
	Term        uint64 `json:"term"`
	VoteGranted bool   `json:"grant"`
}

type AppendEntriesRequest struct {
	Term       uint64             `json:"term"`
	LeaderID   types.NodeID       `json:"leader_id"`
	LeaderAddr string             `json:"leader_addr"`
	PrevIndex  uint64             `json:"prev_index"`
	Entries    []storage.LogEntry `json:"entries,omitempty"`
	Commit     uint64             `json:"commit_index"`
}

type AppendEntriesResponse struct {
	Term    uint64 `json:"term"`
	Success bool   `json:"success"`
}

// JoinResponse acknowledges a Join with the normalized address that was
// admitted to the membership.
type JoinResponse struct {
	Addr string `json:"addr"`
}

// --- Interfaces ---

// RaftRPCHandler is implemented by the Raft node to handle incoming RPCs.
type RaftRPCHandler interface {
	HandleRequestVote(ctx context.Context, req RequestVoteRequest) (RequestVoteResponse, error)
	HandleAppendEntries(ctx context.Context, req AppendEntriesRequest) (AppendEntriesResponse, error)
	HandleJoin(ctx context.Context, raw []byte) (string, error)
}

// Transport is the interface the Raft node uses to send RPCs. The peer is
// identified by its host:port address as held in the membership set.
type Transport interface {
	RequestVote(ctx context.Context, addr string, req RequestVoteRequest) (RequestVoteResponse, error)
	AppendEntries(ctx context.Context, addr string, req AppendEntriesRequest) (AppendEntriesResponse, error)
	Join(ctx context.Context, addr string, payload []byte) (JoinResponse, error)
}

// --- HTTPTransport (client) ---

type HTTPTransport struct {
	client *http.Client
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{client: &http.Client{}}
}

func (t *HTTPTransport) RequestVote(ctx context.Context, addr string, req RequestVoteRequest) (RequestVoteResponse, error) {
	var resp RequestVoteResponse
	err := t.postJSON(ctx, addr, "/raft/request_vote", req, &resp)
	return resp, err
}

func (t *HTTPTransport) AppendEntries(ctx context.Context, addr string, req AppendEntriesRequest) (AppendEntriesResponse, error) {
	var resp AppendEntriesResponse
	err := t.postJSON(ctx, addr, "/raft/append_entries", req, &resp)
	return resp, err
}

// Join sends the payload verbatim: the wire format is raw UTF-8 bytes of an
// address, not JSON.
func (t *HTTPTransport) Join(ctx context.Context, addr string, payload []byte) (JoinResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(addr, "/raft/join"), bytes.NewReader(payload))
	if err != nil {
		return JoinResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "text/plain")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return JoinResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JoinResponse{}, fmt.Errorf("join to %s returned %d", addr, resp.StatusCode)
	}

	var result JoinResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return JoinResponse{}, err
	}
	return result, nil
}

func (t *HTTPTransport) postJSON(ctx context.Context, addr, path string, req, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, peerURL(addr, path), bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s to %s returned %d", path, addr, resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func peerURL(addr, path string) string {
	return "http://" + addr + path
}

// --- RaftHTTPServer (server mux) ---

type RaftHTTPServer struct {
	handler RaftRPCHandler
}

func NewRaftHTTPServer(handler RaftRPCHandler) *RaftHTTPServer {
	return &RaftHTTPServer{handler: handler}
}

func (s *RaftHTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /raft/request_vote", s.handleRequestVote)
	mux.HandleFunc("POST /raft/append_entries", s.handleAppendEntries)
	mux.HandleFunc("POST /raft/join", s.handleJoin)
	return mux
}

func (s *RaftHTTPServer) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var req RequestVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad JSON")
		return
	}

	resp, err := s.handler.HandleRequestVote(r.Context(), req)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, resp)
}

func (s *RaftHTTPServer) handleAppendEntries(w http.ResponseWriter, r *http.Request) {
	var req AppendEntriesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad JSON")
		return
	}

	resp, err := s.handler.HandleAppendEntries(r.Context(), req)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, resp)
}

func (s *RaftHTTPServer) handleJoin(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	addr, err := s.handler.HandleJoin(r.Context(), raw)
	switch {
	case err == nil:
		writeJSON(w, JoinResponse{Addr: addr})
	case membership.IsJoinError(err):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
