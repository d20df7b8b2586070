package session

import (
	"context"
	"sync"
)

// Transport is the write side of the shared game connection.
// Write buffers one frame; Drain flushes everything buffered so far.
type Transport interface {
	Write(frame []byte) error
	Drain(ctx context.Context) error
}

// State holds the readiness of the shared connection and the squad
// membership reported by the game server. It is written by the
// connection manager and only read by command handlers.
type State struct {
	mu sync.RWMutex

	transport Transport
	key       []byte
	iv        []byte
	region    string

	membershipActive bool
	members          map[uint64]bool
}

func NewState() *State {
	return &State{members: make(map[uint64]bool)}
}

// Snapshot is an immutable copy of State taken once per command.
type Snapshot struct {
	Transport Transport
	Key       []byte
	IV        []byte
	Region    string

	MembershipActive bool
	Members          []uint64
}

func (s Snapshot) TransportReady() bool { return s.Transport != nil }

func (s Snapshot) CryptoReady() bool { return len(s.Key) > 0 && len(s.IV) > 0 }

// InGroup reports whether the bot is currently in a squad with at least one
// known member.
func (s Snapshot) InGroup() bool { return s.MembershipActive && len(s.Members) > 0 }

// Ready reports whether region-addressed actions can be sent.
func (s Snapshot) Ready() bool {
	return s.TransportReady() && s.CryptoReady() && s.Region != ""
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Transport:        s.transport,
		Key:              append([]byte(nil), s.key...),
		IV:               append([]byte(nil), s.iv...),
		Region:           s.region,
		MembershipActive: s.membershipActive,
	}
	for id := range s.members {
		snap.Members = append(snap.Members, id)
	}
	return snap
}

// SetTransport publishes the writable connection. Passing nil marks the
// connection as gone.
func (s *State) SetTransport(t Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = t
}

func (s *State) SetKeys(key, iv []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.key = append([]byte(nil), key...)
	s.iv = append([]byte(nil), iv...)
}

func (s *State) SetRegion(region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.region = region
}

// SetMembership replaces the squad roster.
func (s *State) SetMembership(active bool, members []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.membershipActive = active
	s.members = make(map[uint64]bool, len(members))
	for _, id := range members {
		s.members[id] = true
	}
}

// Disconnected drops the transport and the roster, which is only valid for
// the connection that reported it. Keys and region survive a reconnect.
func (s *State) Disconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport = nil
	s.membershipActive = false
	s.members = make(map[uint64]bool)
}
