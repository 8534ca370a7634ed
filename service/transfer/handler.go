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

// Package transfer serves the HTTP side of an upload slot: a single PUT
// that redeems the slot, and GET/HEAD for stored files.
package transfer

import (
	"errors"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"

	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/pkg/ledger"
	"github.com/fawa-io/httpupload/pkg/registry"
	"github.com/fawa-io/httpupload/pkg/slotpath"
	"github.com/fawa-io/httpupload/pkg/storage"
)

// Options configures a Handler.
type Options struct {
	MaxFileSize int64
	HardQuota   int64  // 0 disables the quota
	PutPrefix   string // URL path prefix of PUT requests, e.g. "/upload"
	GetPrefix   string // URL path prefix of GET/HEAD requests
}

// Handler implements the PUT, GET and HEAD endpoints.
type Handler struct {
	opts   Options
	store  storage.Store
	slots  *registry.Registry
	ledger ledger.Ledger
}

// NewHandler returns a Handler writing to store.
func NewHandler(opts Options, store storage.Store, slots *registry.Registry, l ledger.Ledger) *Handler {
	return &Handler{
		opts:   opts,
		store:  store,
		slots:  slots,
		ledger: l,
	}
}

// Put redeems a pending slot by storing the request body under its path.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, err := slotpath.NormalizeRequestPath(r.URL.Path, h.opts.PutPrefix)
	if err != nil {
		fwlog.Debugf("transfer: PUT %q: %v", r.URL.Path, err)
		http.Error(w, "invalid slot", http.StatusForbidden)
		return
	}

	length := r.ContentLength
	if length < 0 {
		http.Error(w, "Content-Length required", http.StatusBadRequest)
		return
	}
	if length > h.opts.MaxFileSize {
		http.Error(w, "file too large", http.StatusBadRequest)
		return
	}

	sender := slotpath.Sender(p)
	if h.opts.HardQuota > 0 {
		usage, err := h.ledger.Get(ctx, sender)
		if err != nil {
			fwlog.Errorf("transfer: read usage for %s: %v", sender, err)
			http.Error(w, "quota unavailable", http.StatusInternalServerError)
			return
		}
		if length > h.opts.HardQuota-usage {
			http.Error(w, "quota exceeded", http.StatusBadRequest)
			return
		}
	}

	slot, ok := h.slots.Take(p)
	if !ok {
		fwlog.Infof("transfer: PUT to non-pending path %s", p)
		http.Error(w, "invalid slot", http.StatusForbidden)
		return
	}
	if length > slot.Size {
		fwlog.Infof("transfer: PUT %s declares %d bytes, slot allows %d", p, length, slot.Size)
		http.Error(w, "content length exceeds slot size", http.StatusBadRequest)
		return
	}

	var body io.Reader = io.LimitReader(r.Body, length)
	if h.opts.HardQuota > 0 {
		body = &quotaReader{ctx: ctx, r: body, ledger: h.ledger, sender: sender}
	}

	n, err := h.store.Put(ctx, p, body, length)
	if err == nil && n < length {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || ctx.Err() != nil {
			fwlog.Warnf("transfer: PUT %s aborted after %d of %d bytes: %v", p, n, length, err)
			http.Error(w, "incomplete upload", http.StatusBadRequest)
			return
		}
		fwlog.Errorf("transfer: store %s: %v", p, err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	if h.opts.HardQuota <= 0 {
		if err := h.ledger.Increment(ctx, sender, n); err != nil {
			fwlog.Errorf("transfer: credit %d bytes to %s: %v", n, sender, err)
		}
	}

	fwlog.Infof("transfer: stored %s (%s)", p, humanize.IBytes(uint64(n)))
	w.WriteHeader(http.StatusOK)
}

// Get serves a stored file. HEAD requests get the same headers and no body.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := slotpath.NormalizeRequestPath(r.URL.Path, h.opts.GetPrefix)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	obj, info, err := h.store.Open(r.Context(), p)
	if err != nil {
		if !errors.Is(err, storage.ErrNotExist) {
			fwlog.Errorf("transfer: open %s: %v", p, err)
		}
		http.NotFound(w, r)
		return
	}
	defer obj.Close()

	name := slotpath.Filename(p)
	ct := contentType(name, obj)

	header := w.Header()
	header.Set("Content-Type", ct)
	header.Set("Content-Disposition", disposition(ct, name))
	header.Set("X-Content-Type-Options", "nosniff")

	http.ServeContent(w, r, name, info.ModTime, obj)
}
