package transporter

import (
	"sort"
	"sync"
)

// Manager keeps at most one canonical Transporter per daemon endpoint, so
// the threads of one client process share a single connection per endpoint
// instead of each dialing their own.
type Manager struct {
	c *Connector

	mu     sync.Mutex
	byAddr map[string]Transporter
}

// NewManager builds a Manager that dials through c.
func NewManager(c *Connector) *Manager {
	return &Manager{c: c, byAddr: make(map[string]Transporter)}
}

// Get returns the canonical Transporter for address, or nil when none is
// connected.
func (m *Manager) Get(address string) Transporter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byAddr[address]
}

// GetOrConnect returns the canonical Transporter for address, dialing one
// when absent. Concurrent callers for the same address get the same
// instance; only one of them dials.
func (m *Manager) GetOrConnect(address string) (Transporter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.byAddr[address]; t != nil {
		return t, nil
	}
	t, err := m.c.Connect(address)
	if err != nil {
		return nil, err
	}
	m.byAddr[address] = t
	return t, nil
}

// Drop closes and forgets the canonical Transporter for address. Callers do
// this after a resource fault so the next GetOrConnect dials fresh.
func (m *Manager) Drop(address string) {
	m.mu.Lock()
	t := m.byAddr[address]
	delete(m.byAddr, address)
	m.mu.Unlock()
	if t != nil {
		_ = t.Close()
	}
}

// Addresses returns the endpoints with a canonical Transporter, sorted.
func (m *Manager) Addresses() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.byAddr))
	for a := range m.byAddr {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// CloseAll closes every canonical Transporter and clears the registry.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]Transporter, 0, len(m.byAddr))
	for _, t := range m.byAddr {
		all = append(all, t)
	}
	m.byAddr = make(map[string]Transporter)
	m.mu.Unlock()
	for _, t := range all {
		_ = t.Close()
	}
}
