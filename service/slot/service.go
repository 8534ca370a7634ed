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

// Package slot authorizes upload slot requests arriving over XMPP.
package slot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/pkg/ledger"
	"github.com/fawa-io/httpupload/pkg/registry"
	"github.com/fawa-io/httpupload/pkg/slotpath"
)

// Request is an upload slot request as decoded by the XMPP layer.
type Request struct {
	Sender      string // bare JID
	Filename    string
	Size        string
	ContentType string
}

// Slot is a granted upload slot.
type Slot struct {
	Path string
	Put  string
	Get  string
}

// Policy holds the limits applied to every request. Zero values disable
// the whitelist and the hard quota.
type Policy struct {
	MaxFileSize int64
	Whitelist   []string
	HardQuota   int64
	PutURL      string
	GetURL      string
}

// Service hands out slots.
type Service struct {
	policy    Policy
	whitelist map[string]bool
	slots     *registry.Registry
	ledger    ledger.Ledger
	now       func() time.Time
}

// NewService returns a Service registering slots in slots and reading
// usage from l.
func NewService(policy Policy, slots *registry.Registry, l ledger.Ledger) *Service {
	s := &Service{
		policy: policy,
		slots:  slots,
		ledger: l,
		now:    time.Now,
	}
	if len(policy.Whitelist) > 0 {
		s.whitelist = make(map[string]bool, len(policy.Whitelist))
		for _, w := range policy.Whitelist {
			s.whitelist[strings.ToLower(w)] = true
		}
	}
	return s
}

// MaxFileSize returns the configured per-file limit.
func (s *Service) MaxFileSize() int64 {
	return s.policy.MaxFileSize
}

// RequestSlot applies the policy to req and, on success, registers a new
// pending slot. Policy failures are returned as *Rejection.
func (s *Service) RequestSlot(ctx context.Context, req Request) (Slot, error) {
	if req.Filename == "" || req.Size == "" {
		return Slot{}, reject(TypeModify, CondBadRequest, "please specify filename and size")
	}
	size, err := strconv.ParseInt(strings.TrimSpace(req.Size), 10, 64)
	if err != nil || size < 0 {
		return Slot{}, reject(TypeModify, CondBadRequest, "size must be a non-negative integer")
	}

	if size > s.policy.MaxFileSize {
		r := reject(TypeModify, CondNotAcceptable, "file too large. max file size is %d", s.policy.MaxFileSize)
		r.MaxFileSize = s.policy.MaxFileSize
		return Slot{}, r
	}

	if s.whitelist != nil && !s.allowed(req.Sender) {
		return Slot{}, reject(TypeCancel, CondNotAllowed, "not allowed to request upload slots")
	}

	identity := slotpath.IdentityToken(req.Sender)
	var usage int64
	if s.policy.HardQuota > 0 {
		usage, err = s.ledger.Get(ctx, identity)
		if err != nil {
			fwlog.Errorf("slot: read usage for %s: %v", req.Sender, err)
			return Slot{}, reject(TypeWait, CondInternalServerError, "quota temporarily unavailable")
		}
	}

	token, err := slotpath.NewSlotToken()
	if err != nil {
		fwlog.Errorf("slot: generate token: %v", err)
		return Slot{}, reject(TypeWait, CondInternalServerError, "could not allocate slot")
	}
	p := slotpath.Build(identity, token, slotpath.SanitizeFilename(req.Filename))

	pending := registry.Slot{Path: p, Sender: identity, Size: size, Created: s.now()}
	err = s.slots.Add(pending, func(reserved int64) error {
		if s.policy.HardQuota <= 0 {
			return nil
		}
		remaining := s.policy.HardQuota - usage - reserved
		if size > remaining {
			if remaining < 0 {
				remaining = 0
			}
			return reject(TypeModify, CondNotAcceptable, "quota exceeded. remaining allowance is %d", remaining)
		}
		return nil
	})
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			return Slot{}, rej
		}
		return Slot{}, fmt.Errorf("register slot: %w", err)
	}

	putURL, err := url.JoinPath(s.policy.PutURL, p)
	if err != nil {
		s.slots.Take(p)
		return Slot{}, fmt.Errorf("build put url: %w", err)
	}
	getURL, err := url.JoinPath(s.policy.GetURL, p)
	if err != nil {
		s.slots.Take(p)
		return Slot{}, fmt.Errorf("build get url: %w", err)
	}

	fwlog.Infof("slot: granted %s (%s) to %s", p, humanize.IBytes(uint64(size)), req.Sender)
	return Slot{Path: p, Put: putURL, Get: getURL}, nil
}

func (s *Service) allowed(sender string) bool {
	sender = strings.ToLower(sender)
	if s.whitelist[sender] {
		return true
	}
	return s.whitelist[domainOf(sender)]
}

// domainOf returns the domainpart of a bare JID.
func domainOf(bare string) string {
	if i := strings.IndexByte(bare, '@'); i >= 0 {
		return bare[i+1:]
	}
	return bare
}
