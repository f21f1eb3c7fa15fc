package model

import (
	"sync"
	"time"
)

// Flash holds one transient status-bar message.
type Flash struct {
	mu      sync.RWMutex
	message string
	isErr   bool
	expires time.Time
	now     func() time.Time
}

func (f *Flash) clock() time.Time {
	if f.now != nil {
		return f.now()
	}
	return time.Now()
}

// Info shows msg for d.
func (f *Flash) Info(msg string, d time.Duration) {
	f.set(msg, false, d)
}

// Err shows err for ten seconds.
func (f *Flash) Err(err error) {
	f.set(err.Error(), true, 10*time.Second)
}

func (f *Flash) set(msg string, isErr bool, d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
	f.isErr = isErr
	f.expires = f.clock().Add(d)
}

// Get returns the current message and whether it is an error. The message is
// empty once expired.
func (f *Flash) Get() (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.clock().After(f.expires) {
		return "", false
	}
	return f.message, f.isErr
}
