package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wizardsardine/liana-business-session/protocol"
)

// pendingEntry tracks one in-flight request awaiting correlation with a
// response.
type pendingEntry struct {
	request  protocol.Request
	expected protocol.ResponseMethod
	sentAt   time.Time
	attempts int
}

// pendingTable is the map from request id to in-flight request, guarded by
// its own lock so the retry worker can snapshot it without blocking the
// sender or receiver.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[uuid.UUID]*pendingEntry)}
}

func (p *pendingTable) insert(id uuid.UUID, req protocol.Request, expected protocol.ResponseMethod, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[id] = &pendingEntry{request: req, expected: expected, sentAt: now, attempts: 0}
}

// remove deletes and returns the entry for id, if present.
func (p *pendingTable) remove(id uuid.UUID) (*pendingEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return e, ok
}

// timedOut returns the ids of every entry whose sentAt is older than
// timeout as of now, along with a shallow copy of each entry so the caller
// can resend or give up without holding the lock.
func (p *pendingTable) timedOut(timeout time.Duration, now time.Time) map[uuid.UUID]pendingEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[uuid.UUID]pendingEntry)
	for id, e := range p.entries {
		if now.Sub(e.sentAt) >= timeout {
			out[id] = *e
		}
	}
	return out
}

// touch updates an entry's sentAt and bumps its attempt count, used by the
// retry worker after resending. It is a no-op if the entry has since been
// removed (its response already arrived).
func (p *pendingTable) touch(id uuid.UUID, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[id]; ok {
		e.sentAt = now
		e.attempts++
	}
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// clear empties the table, used on disconnect.
func (p *pendingTable) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[uuid.UUID]*pendingEntry)
}
