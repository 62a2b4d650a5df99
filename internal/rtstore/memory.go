package rtstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Memory is the in-process backend: one shared tree, any number of
// connected sessions. It exists so conversation state can be exercised
// without Redis; semantics match the Redis backend, including deferred
// fallback writes fired on Sever.
type Memory struct {
	mu       sync.Mutex
	root     map[string]any
	watchers map[int]*memWatcher
	nextID   int
	now      func() time.Time
}

type memWatcher struct {
	path string
	fn   func(Snapshot)

	mu       sync.Mutex
	queue    []Snapshot
	draining bool
}

// enqueue appends a snapshot for later delivery. Safe to call while the
// backend lock is held; no callback runs here, so enqueue order matches
// write order.
func (w *memWatcher) enqueue(snap Snapshot) {
	w.mu.Lock()
	w.queue = append(w.queue, snap)
	w.mu.Unlock()
}

// drain delivers queued snapshots in enqueue order. Only one goroutine
// drains at a time, so a watcher never observes a newer snapshot before
// an older one. Callbacks run outside every lock: a subscriber is
// allowed to write back into the store (read receipts do exactly that),
// and its snapshot lands on the queue the current drainer is working.
func (w *memWatcher) drain() {
	w.mu.Lock()
	if w.draining {
		w.mu.Unlock()
		return
	}
	w.draining = true
	for len(w.queue) > 0 {
		snap := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		w.fn(snap)
		w.mu.Lock()
	}
	w.draining = false
	w.mu.Unlock()
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		root:     make(map[string]any),
		watchers: make(map[int]*memWatcher),
		now:      time.Now,
	}
}

// Connect opens a session against the backend. Each logical client (one
// user's running app) holds its own session so that severing one
// connection fires only that session's deferred writes.
func (m *Memory) Connect(sessionID string) *MemorySession {
	return &MemorySession{
		backend:  m,
		id:       sessionID,
		deferred: make(map[string]any),
	}
}

func (m *Memory) set(path string, value any) error {
	norm, err := normalize(value)
	if err != nil {
		return err
	}
	norm = resolveTimestamps(norm, m.now().UnixMilli())

	m.mu.Lock()
	setAt(m.root, splitPath(path), norm)
	pending := m.collect(path)
	m.mu.Unlock()

	for _, w := range pending {
		w.drain()
	}
	return nil
}

func (m *Memory) update(path string, fields map[string]any) error {
	norm := make(map[string]any, len(fields))
	for k, v := range fields {
		nv, err := normalize(v)
		if err != nil {
			return err
		}
		norm[k] = resolveTimestamps(nv, m.now().UnixMilli())
	}

	m.mu.Lock()
	for k, v := range norm {
		setAt(m.root, append(splitPath(path), k), v)
	}
	pending := m.collect(path)
	m.mu.Unlock()

	for _, w := range pending {
		w.drain()
	}
	return nil
}

func (m *Memory) once(path string) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return NewSnapshot(deepCopy(getAt(m.root, splitPath(path))))
}

func (m *Memory) subscribe(path string, fn func(Snapshot)) func() {
	w := &memWatcher{path: path, fn: fn}

	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = w
	w.enqueue(NewSnapshot(deepCopy(getAt(m.root, splitPath(path)))))
	m.mu.Unlock()

	w.drain()

	return func() {
		m.mu.Lock()
		delete(m.watchers, id)
		m.mu.Unlock()
	}
}

// collect snapshots every watcher related to the changed path onto its
// delivery queue. Runs under the backend lock so concurrent writers
// enqueue in the order their writes applied.
func (m *Memory) collect(changed string) []*memWatcher {
	var out []*memWatcher
	for _, w := range m.watchers {
		if !related(w.path, changed) {
			continue
		}
		w.enqueue(NewSnapshot(deepCopy(getAt(m.root, splitPath(w.path)))))
		out = append(out, w)
	}
	return out
}

// related reports whether one path is an ancestor of (or equal to) the
// other, in either direction.
func related(a, b string) bool {
	as, bs := splitPath(a), splitPath(b)
	n := len(as)
	if len(bs) < n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func getAt(root map[string]any, segs []string) any {
	var cur any = root
	for _, s := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[s]
	}
	if m, ok := cur.(map[string]any); ok && len(m) == 0 {
		return nil
	}
	return cur
}

func setAt(root map[string]any, segs []string, value any) {
	if len(segs) == 0 {
		return
	}
	cur := root
	for _, s := range segs[:len(segs)-1] {
		next, ok := cur[s].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[s] = next
		}
		cur = next
	}
	last := segs[len(segs)-1]
	if value == nil {
		delete(cur, last)
		return
	}
	cur[last] = value
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, c := range t {
			out[k] = deepCopy(c)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = deepCopy(c)
		}
		return out
	default:
		return v
	}
}

// MemorySession is one client's connection to a Memory backend.
type MemorySession struct {
	backend *Memory
	id      string

	mu       sync.Mutex
	deferred map[string]any // path -> pending fallback value
}

var _ Store = (*MemorySession)(nil)

// Set implements Store.
func (s *MemorySession) Set(ctx context.Context, path string, value any) error {
	return s.backend.set(path, value)
}

// Update implements Store.
func (s *MemorySession) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.backend.update(path, fields)
}

// Push implements Store.
func (s *MemorySession) Push(path string) string {
	return ulid.Make().String()
}

// Once implements Store.
func (s *MemorySession) Once(ctx context.Context, path string) (Snapshot, error) {
	return s.backend.once(path), nil
}

// Subscribe implements Store.
func (s *MemorySession) Subscribe(path string, fn func(Snapshot)) (func(), error) {
	return s.backend.subscribe(path, fn), nil
}

// OnDisconnect implements Store.
func (s *MemorySession) OnDisconnect(path string) DeferredWrite {
	return &memDeferred{sess: s, path: path}
}

// Sever simulates an ungraceful connection loss: every deferred fallback
// write registered on this session is applied, with ServerTimestamp
// placeholders resolved to the fire time.
func (s *MemorySession) Sever() {
	s.mu.Lock()
	pending := s.deferred
	s.deferred = make(map[string]any)
	s.mu.Unlock()

	for path, value := range pending {
		_ = s.backend.set(path, value)
	}
}

// Close ends the session gracefully. Pending fallbacks are discarded,
// not fired; an orderly logout cancels its own fallbacks first anyway.
func (s *MemorySession) Close() {
	s.mu.Lock()
	s.deferred = make(map[string]any)
	s.mu.Unlock()
}

type memDeferred struct {
	sess *MemorySession
	path string
}

func (d *memDeferred) Set(ctx context.Context, value any) error {
	norm, err := normalize(value)
	if err != nil {
		return fmt.Errorf("ondisconnect %s: %w", d.path, err)
	}
	d.sess.mu.Lock()
	d.sess.deferred[d.path] = norm
	d.sess.mu.Unlock()
	return nil
}

func (d *memDeferred) Cancel(ctx context.Context) error {
	d.sess.mu.Lock()
	delete(d.sess.deferred, d.path)
	d.sess.mu.Unlock()
	return nil
}
