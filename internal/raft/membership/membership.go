// Package membership tracks the set of peer addresses a node will contact.
// The set only grows: peers are added at bootstrap or through Join, and there
// is no removal operation.
package membership

import (
	"errors"
	"net/netip"
	"sync"
	"unicode/utf8"
)

var (
	// ErrMalformedPayload is returned when a Join payload is not valid UTF-8.
	ErrMalformedPayload = errors.New("join payload is not valid text")
	// ErrInvalidAddress is returned when a Join payload does not parse as host:port.
	ErrInvalidAddress = errors.New("join payload is not a valid address")
)

// IsJoinError reports whether err is a Join validation failure, as opposed
// to an internal fault.
func IsJoinError(err error) bool {
	return errors.Is(err, ErrMalformedPayload) || errors.Is(err, ErrInvalidAddress)
}

// Membership is the mutable set of peer addresses, excluding this node's own.
// Safe for concurrent use by the RPC handlers and the election fanout.
type Membership struct {
	mu    sync.Mutex
	peers []string
}

// New creates a Membership seeded with the given peer addresses.
func New(peers []string) *Membership {
	m := &Membership{}
	m.peers = append(m.peers, peers...)
	return m
}

// Add appends a peer address without validation. Used at bootstrap, where the
// address list has already been vetted by configuration.
func (m *Membership) Add(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers = append(m.peers, addr)
}

// Join decodes raw as UTF-8 text, parses it as a host:port address and
// appends the normalized address. The set is left unchanged on error.
// There is no duplicate check: membership mutates immediately and directly.
func (m *Membership) Join(raw []byte) (string, error) {
	if !utf8.Valid(raw) {
		return "", ErrMalformedPayload
	}
	ap, err := netip.ParseAddrPort(string(raw))
	if err != nil {
		return "", ErrInvalidAddress
	}
	addr := ap.String()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers = append(m.peers, addr)
	return addr, nil
}

// Snapshot returns a copy of the current peer set. Campaigns compute their
// quorum from the snapshot taken at campaign start, so a concurrent Join does
// not retroactively change the threshold.
func (m *Membership) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.peers))
	copy(out, m.peers)
	return out
}

// Len returns the number of known peers.
func (m *Membership) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.peers)
}

// Quorum returns the number of votes needed for a strict majority of the
// current voter count (peers plus self). Quorum(n) computes the same value
// for a snapshot of size n.
func (m *Membership) Quorum() int {
	return Quorum(m.Len())
}

// Quorum returns the strict-majority threshold for a cluster of peers+1
// voters including self.
func Quorum(peers int) int {
	return (peers+1)/2 + 1
}
