package storefakes

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/sessionstore"
	"github.com/pkg/errors"
)

var _ sessionstore.Store = (*FakeSessionStore)(nil)

// FakeSessionStore is an in-memory Store with failure injection for tests.
type FakeSessionStore struct {
	sessions map[string]sessionstore.Resource
	traces   []string
	creates  int
	updates  int
	gets     int

	failCreate error
	failUpdate error
	failGet    error
	lock       sync.RWMutex
}

func NewFakeSessionStore() *FakeSessionStore {
	return &FakeSessionStore{
		sessions: make(map[string]sessionstore.Resource),
	}
}

// FailCreateWith makes every CreateSession return err. nil clears the failure.
func (fs *FakeSessionStore) FailCreateWith(err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failCreate = err
}

// FailUpdateWith makes every UpdateSession return err. nil clears the failure.
func (fs *FakeSessionStore) FailUpdateWith(err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failUpdate = err
}

// FailGetWith makes every GetSession return err. nil clears the failure.
func (fs *FakeSessionStore) FailGetWith(err error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.failGet = err
}

func (fs *FakeSessionStore) CreateSession(_ context.Context, sessionID string, resource sessionstore.Resource, traceActivityID string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.creates++
	fs.traces = append(fs.traces, traceActivityID)

	if fs.failCreate != nil {
		return fs.failCreate
	}
	if _, ok := fs.sessions[sessionID]; ok {
		return errors.Wrapf(apperrors.ErrIntegrationFailure, "session %s already exists", sessionID)
	}
	fs.sessions[sessionID] = resource
	return nil
}

func (fs *FakeSessionStore) UpdateSession(_ context.Context, sessionID string, resource sessionstore.Resource, traceActivityID string) error {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.updates++
	fs.traces = append(fs.traces, traceActivityID)

	if fs.failUpdate != nil {
		return fs.failUpdate
	}
	existing, ok := fs.sessions[sessionID]
	if !ok {
		return errors.Wrapf(apperrors.ErrSessionNotFound, "session %s", sessionID)
	}
	existing.Data = resource.Data
	fs.sessions[sessionID] = existing
	return nil
}

func (fs *FakeSessionStore) GetSession(_ context.Context, sessionID string, traceActivityID string) (sessionstore.Resource, error) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.gets++
	fs.traces = append(fs.traces, traceActivityID)

	if fs.failGet != nil {
		return sessionstore.Resource{}, fs.failGet
	}
	r, ok := fs.sessions[sessionID]
	if !ok {
		return sessionstore.Resource{}, errors.Wrapf(apperrors.ErrSessionNotFound, "session %s", sessionID)
	}
	return r, nil
}

// Put writes a raw resource, bypassing failure injection. Tests use it to plant tampered data.
func (fs *FakeSessionStore) Put(sessionID string, resource sessionstore.Resource) {
	fs.lock.Lock()
	defer fs.lock.Unlock()
	fs.sessions[sessionID] = resource
}

// Raw returns the stored resource for sessionID.
func (fs *FakeSessionStore) Raw(sessionID string) (sessionstore.Resource, bool) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	r, ok := fs.sessions[sessionID]
	return r, ok
}

// Len is the number of stored sessions.
func (fs *FakeSessionStore) Len() int {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return len(fs.sessions)
}

// Calls returns how many creates, updates and gets were attempted.
func (fs *FakeSessionStore) Calls() (creates, updates, gets int) {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return fs.creates, fs.updates, fs.gets
}

// TraceActivityIDs lists the trace ids seen, in call order.
func (fs *FakeSessionStore) TraceActivityIDs() []string {
	fs.lock.RLock()
	defer fs.lock.RUnlock()
	return append([]string(nil), fs.traces...)
}
