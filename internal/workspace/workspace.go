// Package workspace keeps the reports a client is working on between tool
// calls: the raw table, the canonical records derived from it, and the
// mapping that produced them.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vinodismyname/mcpvariance/config"
	"github.com/vinodismyname/mcpvariance/internal/loader"
	"github.com/vinodismyname/mcpvariance/internal/mapper"
	"github.com/vinodismyname/mcpvariance/internal/table"
	"github.com/vinodismyname/mcpvariance/internal/variance"
)

// Workspace is one loaded source plus the state derived from it. Fields are
// only touched inside Manager.WithRead / Manager.WithWrite.
type Workspace struct {
	ID       string
	Source   string
	Sheet    string
	Table    *table.Table
	Metadata variance.FileMetadata

	// Records are nil until the table has been normalized or mapped. Their
	// variance is always computed.
	Records []variance.Record
	Mapping *variance.ColumnMapping

	// Version increments on every successful write so cursors issued
	// against older contents can be rejected.
	Version int64

	LoadedAt  time.Time
	ExpiresAt time.Time
	mu        sync.RWMutex
}

// HasRecords reports whether canonical records are available.
func (w *Workspace) HasRecords() bool { return w.Records != nil }

// Gate coordinates capacity for open workspaces (backed by runtime.Controller).
type Gate interface {
	AcquireWorkspace(ctx context.Context) error
	ReleaseWorkspace()
}

// PathValidator abstracts filesystem path validation. Implementations return
// the canonical path and file size when allowed.
type PathValidator interface {
	ValidateOpenPath(path string) (string, int64, error)
}

// ErrWorkspaceNotFound indicates an unknown or expired workspace ID.
var ErrWorkspaceNotFound = errors.New("workspace: not found")

// ErrNoRecords indicates the workspace holds a raw table that has not been
// normalized or mapped yet.
var ErrNoRecords = errors.New("workspace: no records; apply a column mapping first")

// Manager owns the workspaces with idle TTL eviction. When the gate has no
// free slot, the least recently used workspace makes room.
type Manager struct {
	mu           sync.RWMutex
	workspaces   map[string]*Workspace
	ttl          time.Duration
	cleanupEvery time.Duration
	clock        func() time.Time
	gate         Gate
	validator    PathValidator
	stopCh       chan struct{}
	stopOnce     sync.Once
	cleanupWG    sync.WaitGroup
}

// NewManager constructs a workspace manager. Pass ttl or cleanupEvery <= 0
// to use defaults from config. Gate can be nil for tests; clock defaults to
// time.Now when nil.
func NewManager(ttl, cleanupEvery time.Duration, gate Gate, clock func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = config.DefaultWorkspaceIdleTTL
	}
	if cleanupEvery <= 0 {
		cleanupEvery = config.DefaultWorkspaceCleanupPeriod
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		workspaces:   make(map[string]*Workspace),
		ttl:          ttl,
		cleanupEvery: cleanupEvery,
		clock:        clock,
		gate:         gate,
		stopCh:       make(chan struct{}),
	}
}

// WithValidator installs the path validator used by Open.
func (m *Manager) WithValidator(v PathValidator) *Manager {
	m.validator = v
	return m
}

// Start launches periodic eviction of expired workspaces.
func (m *Manager) Start() {
	m.cleanupWG.Add(1)
	ticker := time.NewTicker(m.cleanupEvery)
	go func() {
		defer m.cleanupWG.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.EvictExpired()
			}
		}
	}()
}

// Close stops background cleanup and drops all workspaces.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	done := make(chan struct{})
	go func() { m.cleanupWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, w := range m.workspaces {
		// wait for in-flight readers and writers
		w.mu.Lock()
		w.mu.Unlock()
		delete(m.workspaces, id)
		m.release()
	}
	return nil
}

// Open validates path, reads its table and registers a workspace holding
// the raw table and its metadata. Records are left nil.
func (m *Manager) Open(ctx context.Context, path string, opts ...loader.Option) (string, error) {
	format, err := loader.FormatFromPath(path)
	if err != nil {
		return "", err
	}
	if err := m.acquire(ctx); err != nil {
		return "", err
	}

	var size int64
	if m.validator != nil {
		canonical, n, err := m.validator.ValidateOpenPath(path)
		if err != nil {
			m.release()
			return "", err
		}
		path, size = canonical, n
	}

	t, err := loader.LoadTable(ctx, path, format, opts...)
	if err != nil {
		m.release()
		return "", err
	}
	ws := &Workspace{
		Source:   path,
		Table:    t,
		Metadata: mapper.CreateFileMetadata(filepath.Base(path), t, string(format), size),
	}
	return m.register(ws), nil
}

// Adopt registers a workspace built elsewhere, e.g. from an upload.
// Identity and timestamps are assigned here.
func (m *Manager) Adopt(ctx context.Context, ws *Workspace) (string, error) {
	if ws == nil || ws.Table == nil {
		return "", fmt.Errorf("workspace: nil table")
	}
	if err := m.acquire(ctx); err != nil {
		return "", err
	}
	return m.register(ws), nil
}

func (m *Manager) register(ws *Workspace) string {
	ws.ID = uuid.NewString()
	ws.LoadedAt = m.clock()
	ws.ExpiresAt = ws.LoadedAt.Add(m.ttl)

	m.mu.Lock()
	m.workspaces[ws.ID] = ws
	m.mu.Unlock()
	return ws.ID
}

// Get returns the workspace when present and refreshes its TTL.
func (m *Manager) Get(id string) (*Workspace, bool) {
	m.mu.RLock()
	w, ok := m.workspaces[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	now := m.clock()
	w.mu.Lock()
	w.ExpiresAt = now.Add(m.ttl)
	w.mu.Unlock()
	return w, true
}

// WithRead runs fn under a shared lock on the workspace.
func (m *Manager) WithRead(id string, fn func(*Workspace) error) error {
	w, ok := m.Get(id)
	if !ok {
		return ErrWorkspaceNotFound
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fn(w)
}

// WithWrite runs fn under an exclusive lock and bumps the version when fn
// succeeds.
func (m *Manager) WithWrite(id string, fn func(*Workspace) error) error {
	w, ok := m.Get(id)
	if !ok {
		return ErrWorkspaceNotFound
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := fn(w); err != nil {
		return err
	}
	w.Version++
	return nil
}

// CloseWorkspace removes a workspace by ID, releasing capacity via the gate.
func (m *Manager) CloseWorkspace(id string) error {
	m.mu.Lock()
	w, ok := m.workspaces[id]
	if ok {
		delete(m.workspaces, id)
	}
	m.mu.Unlock()
	if !ok {
		return ErrWorkspaceNotFound
	}
	w.mu.Lock()
	w.Table, w.Records = nil, nil
	w.mu.Unlock()
	m.release()
	return nil
}

// EvictExpired drops workspaces whose idle TTL has passed.
func (m *Manager) EvictExpired() int {
	now := m.clock()
	var expired []string

	m.mu.RLock()
	for id, w := range m.workspaces {
		if w.Expired(now) {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	n := 0
	for _, id := range expired {
		if m.CloseWorkspace(id) == nil {
			n++
		}
	}
	return n
}

// Count returns the current number of cached workspaces.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// acquire takes a slot from the gate. When the gate is full the least
// recently used workspace is closed and the acquire retried, so a full cache
// only fails once it holds nothing left to evict.
func (m *Manager) acquire(ctx context.Context) error {
	if m.gate == nil {
		return nil
	}
	for {
		err := m.gate.AcquireWorkspace(ctx)
		if err == nil || ctx.Err() != nil {
			return err
		}
		if !m.evictLeastRecent() {
			return err
		}
	}
}

// evictLeastRecent closes the workspace with the earliest expiry, which is
// the one touched least recently. It reports false when none is open.
func (m *Manager) evictLeastRecent() bool {
	var (
		victim string
		oldest time.Time
	)
	m.mu.RLock()
	for id, w := range m.workspaces {
		at := w.expiresAt()
		if victim == "" || at.Before(oldest) {
			victim, oldest = id, at
		}
	}
	m.mu.RUnlock()
	if victim == "" {
		return false
	}
	// lost a race with another close; the slot is free either way
	_ = m.CloseWorkspace(victim)
	return true
}

func (m *Manager) release() {
	if m.gate == nil {
		return
	}
	m.gate.ReleaseWorkspace()
}

// Expired reports whether the workspace has reached its TTL.
func (w *Workspace) Expired(now time.Time) bool {
	return now.After(w.expiresAt())
}

func (w *Workspace) expiresAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.ExpiresAt
}
