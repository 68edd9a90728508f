package watch

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"filecron/internal/rule"
)

// Stub is an in-memory Notifier for tests. It records registrations without
// touching the filesystem and lets tests inject synthetic notifications.
type Stub struct {
	mutex         sync.Mutex
	events        chan Notification
	errors        chan error
	registrations []StubRegistration
	byPath        map[string]Handle
	masks         map[Handle]rule.EventKind
	failures      map[string]error
	nextHandle    Handle
	closed        bool
}

// StubRegistration records one Register call.
type StubRegistration struct {
	Path   string
	Mask   rule.EventKind
	Handle Handle
}

func NewStub() *Stub {
	return &Stub{
		events:   make(chan Notification, 16),
		errors:   make(chan error, 4),
		byPath:   make(map[string]Handle),
		masks:    make(map[Handle]rule.EventKind),
		failures: make(map[string]error),
	}
}

// FailPath makes Register return err for path.
func (stub *Stub) FailPath(path string, err error) {
	stub.mutex.Lock()
	stub.failures[filepath.Clean(path)] = err
	stub.mutex.Unlock()
}

func (stub *Stub) Register(path string, mask rule.EventKind) (Handle, error) {
	if stub == nil {
		return 0, errors.New("stub is nil")
	}
	path = filepath.Clean(path)

	stub.mutex.Lock()
	defer stub.mutex.Unlock()

	if stub.closed {
		return 0, errors.New("notifier is closed")
	}
	if err, ok := stub.failures[path]; ok {
		return 0, err
	}
	if handle, ok := stub.byPath[path]; ok {
		stub.masks[handle] |= mask
		stub.registrations = append(stub.registrations, StubRegistration{Path: path, Mask: mask, Handle: handle})
		return handle, nil
	}
	stub.nextHandle++
	handle := stub.nextHandle
	stub.byPath[path] = handle
	stub.masks[handle] = mask
	stub.registrations = append(stub.registrations, StubRegistration{Path: path, Mask: mask, Handle: handle})
	return handle, nil
}

func (stub *Stub) Unregister(handle Handle) error {
	if stub == nil {
		return nil
	}
	stub.mutex.Lock()
	defer stub.mutex.Unlock()

	for path, candidate := range stub.byPath {
		if candidate == handle {
			delete(stub.byPath, path)
		}
	}
	delete(stub.masks, handle)
	return nil
}

// Inject delivers a synthetic notification. The send blocks until the
// consumer picks it up, so injected bursts keep their order.
func (stub *Stub) Inject(handle Handle, kind rule.EventKind, name string) {
	if stub == nil {
		return
	}
	stub.events <- Notification{
		Handle:    handle,
		Kind:      kind,
		Name:      name,
		Timestamp: time.Now().UTC(),
	}
}

// InjectError delivers a synthetic backend error.
func (stub *Stub) InjectError(err error) {
	if stub == nil {
		return
	}
	stub.errors <- err
}

// HandleFor returns the handle registered for path, if any.
func (stub *Stub) HandleFor(path string) (Handle, bool) {
	if stub == nil {
		return 0, false
	}
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	handle, ok := stub.byPath[filepath.Clean(path)]
	return handle, ok
}

// MaskFor returns the accumulated mask registered on handle.
func (stub *Stub) MaskFor(handle Handle) rule.EventKind {
	if stub == nil {
		return 0
	}
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return stub.masks[handle]
}

// Registrations returns every Register call in order.
func (stub *Stub) Registrations() []StubRegistration {
	if stub == nil {
		return nil
	}
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	out := make([]StubRegistration, len(stub.registrations))
	copy(out, stub.registrations)
	return out
}

// ActiveWatches reports how many distinct paths are currently watched.
func (stub *Stub) ActiveWatches() int {
	if stub == nil {
		return 0
	}
	stub.mutex.Lock()
	defer stub.mutex.Unlock()
	return len(stub.byPath)
}

func (stub *Stub) Events() <-chan Notification {
	return stub.events
}

func (stub *Stub) Errors() <-chan error {
	return stub.errors
}

func (stub *Stub) Close() error {
	if stub == nil {
		return nil
	}
	stub.mutex.Lock()
	if stub.closed {
		stub.mutex.Unlock()
		return nil
	}
	stub.closed = true
	stub.mutex.Unlock()

	close(stub.events)
	return nil
}
