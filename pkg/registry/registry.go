// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry holds the upload slots that have been handed out over
// XMPP and not yet redeemed by an HTTP PUT.
package registry

import (
	"errors"
	"sync"
	"time"
)

// ErrDuplicate is returned when a path is already pending.
var ErrDuplicate = errors.New("slot already pending")

// Slot is a storage path awaiting exactly one PUT.
type Slot struct {
	Path    string
	Sender  string // identity token
	Size    int64  // authorized size, reserved against the hard quota
	Created time.Time
}

// Registry is the set of pending slots keyed by path. Every operation is
// atomic under a single mutex.
type Registry struct {
	mu    sync.Mutex
	slots map[string]Slot
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{slots: make(map[string]Slot)}
}

// Add registers s. If check is non-nil it is called under the lock with the
// bytes already reserved by other pending slots of the same sender; a
// non-nil result aborts the insert and is returned unchanged.
func (r *Registry) Add(s Slot, check func(reserved int64) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.slots[s.Path]; ok {
		return ErrDuplicate
	}
	if check != nil {
		if err := check(r.reservedLocked(s.Sender)); err != nil {
			return err
		}
	}
	r.slots[s.Path] = s
	return nil
}

// Take removes and returns the slot for path. Only one caller can ever
// observe ok == true for a given Add.
func (r *Registry) Take(path string) (Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.slots[path]
	if ok {
		delete(r.slots, path)
	}
	return s, ok
}

// Pending reports whether path is currently pending.
func (r *Registry) Pending(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.slots[path]
	return ok
}

// Reserved returns the bytes reserved by the sender's pending slots.
func (r *Registry) Reserved(sender string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reservedLocked(sender)
}

func (r *Registry) reservedLocked(sender string) int64 {
	var n int64
	for _, s := range r.slots {
		if s.Sender == sender {
			n += s.Size
		}
	}
	return n
}

// Purge drops slots created before now-ttl and returns them.
func (r *Registry) Purge(now time.Time, ttl time.Duration) []Slot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var purged []Slot
	for p, s := range r.slots {
		if now.Sub(s.Created) > ttl {
			purged = append(purged, s)
			delete(r.slots, p)
		}
	}
	return purged
}

// Len returns the number of pending slots.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
