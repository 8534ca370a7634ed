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

// Package ledger tracks how many bytes each sender currently occupies.
package ledger

import (
	"context"
	"sync"
)

// Ledger maps a sender identity token to bytes used. Values never go
// negative. Implementations must be safe for concurrent use.
type Ledger interface {
	// Get returns the bytes used by sender, 0 if unknown.
	Get(ctx context.Context, sender string) (int64, error)

	// Increment adds delta to the sender's usage.
	Increment(ctx context.Context, sender string, delta int64) error

	// Recompute overwrites the sender's usage with an authoritative value
	// taken from a full storage scan.
	Recompute(ctx context.Context, sender string, bytes int64) error
}

// Memory is an in-process Ledger guarded by a single mutex.
type Memory struct {
	mu    sync.Mutex
	usage map[string]int64
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{usage: make(map[string]int64)}
}

func (m *Memory) Get(_ context.Context, sender string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[sender], nil
}

func (m *Memory) Increment(_ context.Context, sender string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage[sender] = clamp(m.usage[sender] + delta)
	return nil
}

func (m *Memory) Recompute(_ context.Context, sender string, bytes int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bytes <= 0 {
		delete(m.usage, sender)
		return nil
	}
	m.usage[sender] = bytes
	return nil
}

// Snapshot returns a copy of all entries.
func (m *Memory) Snapshot() map[string]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int64, len(m.usage))
	for k, v := range m.usage {
		out[k] = v
	}
	return out
}

func clamp(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
