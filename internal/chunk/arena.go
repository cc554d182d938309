// Package chunk accumulates byte-range upload segments until a file is
// complete and can be reassembled.
package chunk

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/proptly/mediaflow/internal/apperr"
)

type part struct {
	offset int64
	data   []byte
}

type session struct {
	parts    []part
	total    int64
	received int64
	lastSeen time.Time
}

// Arena holds in-progress chunked uploads keyed by session ID. Sessions
// idle longer than the TTL are evicted by a background sweep so an
// abandoned upload cannot pin its buffer forever.
type Arena struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewArena(ttl time.Duration) *Arena {
	a := &Arena{
		sessions: make(map[string]*session),
		ttl:      ttl,
		stop:     make(chan struct{}),
	}

	go a.sweepLoop()

	return a
}

// Add records one chunk. Returns the running byte count, the declared
// total, and whether the session now holds every byte.
func (a *Arena) Add(key string, offset int64, data []byte, total int64) (int64, int64, bool, error) {
	if total <= 0 {
		return 0, 0, false, fmt.Errorf("%w: total size must be positive", apperr.ErrValidation)
	}
	if offset < 0 || offset+int64(len(data)) > total {
		return 0, 0, false, fmt.Errorf("%w: chunk range %d-%d outside total %d", apperr.ErrValidation, offset, offset+int64(len(data)), total)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[key]
	if !ok {
		s = &session{total: total}
		a.sessions[key] = s
	}
	if s.total != total {
		return 0, 0, false, fmt.Errorf("%w: declared total changed from %d to %d", apperr.ErrValidation, s.total, total)
	}

	// Copy: the caller's buffer is reused between requests.
	buf := make([]byte, len(data))
	copy(buf, data)

	s.parts = append(s.parts, part{offset: offset, data: buf})
	s.received += int64(len(buf))
	s.lastSeen = time.Now()

	return s.received, s.total, s.received >= s.total, nil
}

// Assemble concatenates the session's chunks sorted by declared offset
// and removes the session. Chunk contents are not checksummed; ordering
// comes from the offsets alone.
func (a *Arena) Assemble(key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: no chunk session %q", apperr.ErrNotFound, key)
	}
	if s.received < s.total {
		return nil, fmt.Errorf("%w: session %q has %d of %d bytes", apperr.ErrValidation, key, s.received, s.total)
	}

	sort.Slice(s.parts, func(i, j int) bool {
		return s.parts[i].offset < s.parts[j].offset
	})

	buf := make([]byte, 0, s.total)
	for _, p := range s.parts {
		buf = append(buf, p.data...)
	}

	delete(a.sessions, key)
	return buf, nil
}

// Discard drops a session without assembling it.
func (a *Arena) Discard(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, key)
}

// Close stops the background sweep.
func (a *Arena) Close() {
	a.stopOnce.Do(func() { close(a.stop) })
}

func (a *Arena) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.sweep(time.Now())
		case <-a.stop:
			return
		}
	}
}

// sweep evicts sessions idle longer than the TTL.
func (a *Arena) sweep(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, s := range a.sessions {
		if now.Sub(s.lastSeen) > a.ttl {
			slog.Warn("evicting abandoned chunk session",
				"session", key,
				"received", s.received,
				"total", s.total,
			)
			delete(a.sessions, key)
		}
	}
}
