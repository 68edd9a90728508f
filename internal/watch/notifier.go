package watch

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"filecron/internal/logging"
	"filecron/internal/rule"

	"github.com/fsnotify/fsnotify"
)

const eventBufferSize = 64

// OS is the fsnotify-backed Notifier. One fsnotify watch is held per distinct
// path; registrations for a path already watched share its handle with a
// widened mask.
type OS struct {
	watcher    *fsnotify.Watcher
	mutex      sync.Mutex
	byPath     map[string]Handle
	entries    map[Handle]*osEntry
	events     chan Notification
	errors     chan error
	done       chan struct{}
	closed     bool
	nextHandle Handle
	logger     *logging.Logger
}

type osEntry struct {
	path string
	mask rule.EventKind
}

// NewOS opens the kernel notification channel.
func NewOS(logger *logging.Logger) (*OS, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	notifier := &OS{
		watcher: watcher,
		byPath:  make(map[string]Handle),
		entries: make(map[Handle]*osEntry),
		events:  make(chan Notification, eventBufferSize),
		errors:  make(chan error, 4),
		done:    make(chan struct{}),
		logger:  logger,
	}
	go notifier.forward()
	return notifier, nil
}

// Register adds a watch for mask on path. The path should be absolute; it is
// cleaned so later notifications resolve back to it.
func (notifier *OS) Register(path string, mask rule.EventKind) (Handle, error) {
	if notifier == nil {
		return 0, errors.New("notifier is nil")
	}
	if path == "" {
		return 0, errors.New("path is required")
	}
	if mask == 0 {
		return 0, errors.New("mask is empty")
	}
	path = filepath.Clean(path)

	notifier.mutex.Lock()
	if notifier.closed {
		notifier.mutex.Unlock()
		return 0, errors.New("notifier is closed")
	}
	if handle, ok := notifier.byPath[path]; ok {
		notifier.entries[handle].mask |= mask
		notifier.mutex.Unlock()
		return handle, nil
	}
	notifier.nextHandle++
	handle := notifier.nextHandle
	notifier.byPath[path] = handle
	notifier.entries[handle] = &osEntry{path: path, mask: mask}
	notifier.mutex.Unlock()

	if err := notifier.watcher.Add(path); err != nil {
		notifier.mutex.Lock()
		delete(notifier.byPath, path)
		delete(notifier.entries, handle)
		notifier.mutex.Unlock()
		return 0, err
	}
	if notifier.logger != nil {
		notifier.logger.Debug("watch added", map[string]string{
			"filecron.category": "watch",
			"path":              path,
			"mask":              mask.String(),
		})
	}
	return handle, nil
}

// Unregister releases the watch behind handle.
func (notifier *OS) Unregister(handle Handle) error {
	if notifier == nil {
		return nil
	}

	notifier.mutex.Lock()
	entry, ok := notifier.entries[handle]
	if ok {
		delete(notifier.entries, handle)
		delete(notifier.byPath, entry.path)
	}
	notifier.mutex.Unlock()

	if !ok {
		return nil
	}
	return notifier.watcher.Remove(entry.path)
}

func (notifier *OS) Events() <-chan Notification {
	return notifier.events
}

func (notifier *OS) Errors() <-chan error {
	return notifier.errors
}

// Close releases all watches and ends the event stream.
func (notifier *OS) Close() error {
	if notifier == nil {
		return nil
	}

	notifier.mutex.Lock()
	if notifier.closed {
		notifier.mutex.Unlock()
		return nil
	}
	notifier.closed = true
	notifier.mutex.Unlock()

	close(notifier.done)
	return notifier.watcher.Close()
}

func (notifier *OS) forward() {
	defer close(notifier.events)
	for {
		select {
		case raw, ok := <-notifier.watcher.Events:
			if !ok {
				return
			}
			notifier.forwardEvent(raw)
		case err, ok := <-notifier.watcher.Errors:
			if !ok {
				return
			}
			select {
			case notifier.errors <- err:
			case <-notifier.done:
				return
			}
		case <-notifier.done:
			return
		}
	}
}

func (notifier *OS) forwardEvent(raw fsnotify.Event) {
	path := filepath.Clean(raw.Name)

	notifier.mutex.Lock()
	handle, ok := notifier.byPath[path]
	self := ok
	if !ok {
		handle, ok = notifier.byPath[filepath.Dir(path)]
	}
	var entry *osEntry
	if ok {
		entry = notifier.entries[handle]
	}
	notifier.mutex.Unlock()

	if entry == nil {
		return
	}

	kind := kindsForOp(raw.Op, self) & entry.mask
	if kind == 0 {
		return
	}

	name := ""
	if !self {
		name = filepath.Base(path)
	}
	notification := Notification{
		Handle:    handle,
		Kind:      kind,
		Name:      name,
		Timestamp: time.Now().UTC(),
	}
	select {
	case notifier.events <- notification:
	case <-notifier.done:
	}
}

// kindsForOp maps an fsnotify operation onto the kinds it may represent.
// fsnotify cannot distinguish a create from a move-in, or a write from the
// final close of a written file, so those report both bits and rule masks
// select the ones they asked for.
func kindsForOp(op fsnotify.Op, self bool) rule.EventKind {
	var kind rule.EventKind
	if op.Has(fsnotify.Create) {
		kind |= rule.Create | rule.MovedTo
	}
	if op.Has(fsnotify.Write) {
		kind |= rule.Modify | rule.CloseWrite
	}
	if op.Has(fsnotify.Remove) {
		kind |= rule.Delete
		if self {
			kind |= rule.DeleteSelf
		}
	}
	if op.Has(fsnotify.Rename) {
		kind |= rule.MovedFrom
		if self {
			kind |= rule.MoveSelf
		}
	}
	if op.Has(fsnotify.Chmod) {
		kind |= rule.Attrib
	}
	return kind
}
