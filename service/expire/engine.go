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

// Package expire deletes stored files past their retention age, evicts a
// sender's oldest files once the soft quota is exceeded, and keeps the
// quota ledger in step with what is actually on disk.
package expire

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/pkg/ledger"
	"github.com/fawa-io/httpupload/pkg/registry"
	"github.com/fawa-io/httpupload/pkg/storage"
)

var (
	// ErrNoStopSignal is returned by Run when its context can never be cancelled.
	ErrNoStopSignal = errors.New("expire: context has no stop signal")

	// ErrInvalidInterval is returned by Run when the sweep interval is not positive.
	ErrInvalidInterval = errors.New("expire: sweep interval must be positive")
)

// Mode selects what a sweep is allowed to do.
type Mode int

const (
	// ModeFull deletes expired and over-quota files, then recomputes usage.
	ModeFull Mode = iota
	// ModeQuotaOnly only recomputes usage. Nothing is deleted.
	ModeQuotaOnly
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeQuotaOnly:
		return "quota-only"
	default:
		return "unknown"
	}
}

// Options configures an Engine. Zero MaxAge, SoftQuota or SlotTTL disable
// the corresponding policy.
type Options struct {
	MaxAge    time.Duration
	SoftQuota int64
	Interval  time.Duration
	SlotTTL   time.Duration
}

// Engine runs retention sweeps over a Store.
type Engine struct {
	store  storage.Store
	ledger ledger.Ledger
	slots  *registry.Registry
	opts   Options

	now func() time.Time
}

// NewEngine returns an Engine. slots may be nil, in which case Run never
// purges pending slots.
func NewEngine(store storage.Store, l ledger.Ledger, slots *registry.Registry, opts Options) *Engine {
	return &Engine{
		store:  store,
		ledger: l,
		slots:  slots,
		opts:   opts,
		now:    time.Now,
	}
}

// Sweep walks every sender once. Failures for one sender are logged and do
// not stop the sweep; only cancellation of ctx and a failure to enumerate
// senders are returned.
func (e *Engine) Sweep(ctx context.Context, mode Mode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	senders, err := e.store.Senders(ctx)
	if err != nil {
		return err
	}

	for _, sender := range senders {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.sweepSender(ctx, sender, mode); err != nil {
			fwlog.Errorf("expire: sweep %s: %v", sender, err)
		}
	}
	fwlog.Debugf("expire: %s sweep over %d senders done", mode, len(senders))
	return nil
}

func (e *Engine) sweepSender(ctx context.Context, sender string, mode Mode) error {
	files, err := e.store.List(ctx, sender)
	if err != nil {
		return err
	}

	full := mode == ModeFull
	now := e.now()

	kept := make([]storage.FileInfo, 0, len(files))
	var total int64
	for _, f := range files {
		if full && e.opts.MaxAge > 0 && now.Sub(f.ModTime) > e.opts.MaxAge {
			if e.remove(ctx, f, "expired") {
				continue
			}
		}
		kept = append(kept, f)
		total += f.Size
	}

	if full && e.opts.SoftQuota > 0 && total > e.opts.SoftQuota {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].ModTime.Before(kept[j].ModTime)
		})
		// Oldest first. A file that cannot be removed ends the eviction so
		// nothing newer goes while it remains.
		for _, f := range kept {
			if total <= e.opts.SoftQuota || !e.remove(ctx, f, "over soft quota") {
				break
			}
			total -= f.Size
		}
	}

	if full {
		if err := e.store.Prune(ctx, sender); err != nil {
			fwlog.Warnf("expire: prune %s: %v", sender, err)
		}
	}

	return e.ledger.Recompute(ctx, sender, total)
}

// remove deletes f and reports whether it is gone.
func (e *Engine) remove(ctx context.Context, f storage.FileInfo, reason string) bool {
	if err := e.store.Remove(ctx, f.Path); err != nil && !errors.Is(err, storage.ErrNotExist) {
		fwlog.Warnf("expire: remove %s: %v", f.Path, err)
		return false
	}
	fwlog.Infof("expire: removed %s (%s, %s)", f.Path, humanize.IBytes(uint64(f.Size)), reason)
	return true
}

// PurgeSlots drops pending slots older than the slot TTL and returns how
// many were dropped.
func (e *Engine) PurgeSlots() int {
	if e.slots == nil || e.opts.SlotTTL <= 0 {
		return 0
	}
	stale := e.slots.Purge(e.now(), e.opts.SlotTTL)
	for _, s := range stale {
		fwlog.Debugf("expire: slot %s for %s never redeemed", s.Path, s.Sender)
	}
	return len(stale)
}

// Run sweeps every Interval and purges stale slots until ctx is cancelled.
// A cancelled context is a clean stop and Run returns nil.
func (e *Engine) Run(ctx context.Context) error {
	if ctx.Done() == nil {
		return ErrNoStopSignal
	}
	if e.opts.Interval <= 0 {
		return ErrInvalidInterval
	}

	sweep := time.NewTicker(e.opts.Interval)
	defer sweep.Stop()

	var purge <-chan time.Time
	if e.slots != nil && e.opts.SlotTTL > 0 {
		t := time.NewTicker(purgeInterval(e.opts.SlotTTL))
		defer t.Stop()
		purge = t.C
	}

	fwlog.Infof("expire: sweeping every %s (max age %s, soft quota %s)",
		e.opts.Interval, e.opts.MaxAge, humanize.IBytes(uint64(max(e.opts.SoftQuota, 0))))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sweep.C:
			if err := e.Sweep(ctx, ModeFull); err != nil && ctx.Err() == nil {
				fwlog.Errorf("expire: sweep: %v", err)
			}
		case <-purge:
			if n := e.PurgeSlots(); n > 0 {
				fwlog.Infof("expire: purged %d stale slots", n)
			}
		}
	}
}

func purgeInterval(ttl time.Duration) time.Duration {
	if d := ttl / 2; d >= time.Second {
		return d
	}
	return time.Second
}
