// Package httpapi exposes the operator and client HTTP surface: node status,
// cluster membership and the replicated key-value store.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/clusterkit/raftkv/internal/clusterkv"
	"github.com/clusterkit/raftkv/internal/raft"
	"github.com/clusterkit/raftkv/internal/raft/membership"
	"github.com/clusterkit/raftkv/internal/types"
)

// Server serves the HTTP API backed by a ClusterKV.
type Server struct {
	ckv *clusterkv.ClusterKV
}

// New creates a new HTTP API server.
func New(ckv *clusterkv.ClusterKV) *Server {
	return &Server{ckv: ckv}
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/healthz", s.Healthz)
	r.Get("/status", s.Status)
	r.Route("/cluster", func(r chi.Router) {
		r.Get("/members", s.Members)
		r.Post("/join", s.Join)
	})
	r.Route("/kv", func(r chi.Router) {
		r.Get("/", s.ListKeys)
		r.Get("/{key}", s.GetKey)
		r.Put("/{key}", s.PutKey)
		r.Delete("/{key}", s.DeleteKey)
		r.Post("/mget", s.MGet)
		r.Put("/mput", s.MPut)
		r.Post("/mdelete", s.MDelete)
	})
	return r
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ckv.Status())
}

func (s *Server) Members(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "members": s.ckv.Members()})
}

func (s *Server) Join(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Addr string `json:"addr"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	addr, err := s.ckv.Join(r.Context(), []byte(body.Addr))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "addr": addr})
	case errors.Is(err, membership.ErrMalformedPayload), errors.Is(err, membership.ErrInvalidAddress):
		writeError(w, http.StatusBadRequest, "bad_address", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

func (s *Server) ListKeys(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": s.ckv.All()})
}

func (s *Server) GetKey(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	v, ok := s.ckv.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "value": v})
}

func (s *Server) PutKey(w http.ResponseWriter, r *http.Request) {
	if s.redirectIfNotLeader(w) {
		return
	}
	key := chi.URLParam(r, "key")
	var body struct {
		ClientID string `json:"client_id"`
		Seq      uint64 `json:"seq"`
		Value    string `json:"value"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	cmd := types.Command{
		ClientID: orMintClientID(body.ClientID),
		Seq:      body.Seq,
		Key:      key,
		Value:    body.Value,
	}
	s.propose(w, r, cmd, s.ckv.Put)
}

func (s *Server) DeleteKey(w http.ResponseWriter, r *http.Request) {
	if s.redirectIfNotLeader(w) {
		return
	}
	key := chi.URLParam(r, "key")
	var body struct {
		ClientID string `json:"client_id"`
		Seq      uint64 `json:"seq"`
	}
	_ = decodeJSON(r, &body)
	cmd := types.Command{
		ClientID: orMintClientID(body.ClientID),
		Seq:      body.Seq,
		Key:      key,
	}
	s.propose(w, r, cmd, s.ckv.Delete)
}

func (s *Server) MGet(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Keys []string `json:"keys"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if len(body.Keys) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "keys is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "values": s.ckv.MGet(body.Keys)})
}

func (s *Server) MPut(w http.ResponseWriter, r *http.Request) {
	if s.redirectIfNotLeader(w) {
		return
	}
	var body struct {
		ClientID string        `json:"client_id"`
		Seq      uint64        `json:"seq"`
		Entries  []types.Entry `json:"entries"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	cmd := types.Command{
		ClientID: orMintClientID(body.ClientID),
		Seq:      body.Seq,
		Entries:  body.Entries,
	}
	s.propose(w, r, cmd, s.ckv.MPut)
}

func (s *Server) MDelete(w http.ResponseWriter, r *http.Request) {
	if s.redirectIfNotLeader(w) {
		return
	}
	var body struct {
		ClientID string   `json:"client_id"`
		Seq      uint64   `json:"seq"`
		Keys     []string `json:"keys"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	cmd := types.Command{
		ClientID: orMintClientID(body.ClientID),
		Seq:      body.Seq,
		Keys:     body.Keys,
	}
	s.propose(w, r, cmd, s.ckv.MDelete)
}

func (s *Server) propose(w http.ResponseWriter, r *http.Request, cmd types.Command, do func(ctx context.Context, cmd types.Command) (types.ApplyResult, error)) {
	res, err := do(r.Context(), cmd)
	if err != nil {
		if errors.Is(err, raft.ErrNotLeader) {
			s.redirectIfNotLeader(w)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if !res.Ok {
		writeJSON(w, http.StatusBadRequest, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// redirectIfNotLeader returns 307 with leader hint if this node is not the leader.
func (s *Server) redirectIfNotLeader(w http.ResponseWriter) bool {
	if s.ckv.IsLeader() {
		return false
	}
	hint := s.ckv.LeaderHint()
	writeJSON(w, http.StatusTemporaryRedirect, map[string]any{
		"error":       "not_leader",
		"leader_hint": hint,
	})
	return true
}

// orMintClientID fills in a fresh client identity when the caller did not
// supply one, so dedupe records stay per-caller.
func orMintClientID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// --- JSON helpers ---

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ApplyResult{Ok: false, ErrCode: code, ErrMsg: msg})
}
