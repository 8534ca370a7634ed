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

package slot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/httpupload/pkg/ledger"
	"github.com/fawa-io/httpupload/pkg/registry"
	"github.com/fawa-io/httpupload/pkg/slotpath"
)

func newService(p Policy) (*Service, *registry.Registry, *ledger.Memory) {
	if p.PutURL == "" {
		p.PutURL = "https://upload.example.com/put"
	}
	if p.GetURL == "" {
		p.GetURL = "https://upload.example.com/get"
	}
	reg := registry.New()
	l := ledger.NewMemory()
	return NewService(p, reg, l), reg, l
}

func requireRejection(t *testing.T, err error, cond string) *Rejection {
	t.Helper()
	var rej *Rejection
	require.True(t, errors.As(err, &rej), "want *Rejection, got %v", err)
	assert.Equal(t, cond, rej.Condition)
	return rej
}

func TestRequestSlotSuccess(t *testing.T) {
	svc, reg, _ := newService(Policy{MaxFileSize: 2000})

	s, err := svc.RequestSlot(context.Background(), Request{Sender: "romeo@montague.lit", Filename: "photo.png", Size: "1000"})
	require.NoError(t, err)

	require.NoError(t, slotpath.Validate(s.Path))
	assert.Equal(t, "https://upload.example.com/put/"+s.Path, s.Put)
	assert.Equal(t, "https://upload.example.com/get/"+s.Path, s.Get)
	assert.True(t, strings.HasPrefix(s.Path, slotpath.IdentityToken("romeo@montague.lit")+"/"))
	assert.True(t, strings.HasSuffix(s.Path, "/photo.png"))
	assert.True(t, reg.Pending(s.Path))

	again, err := svc.RequestSlot(context.Background(), Request{Sender: "romeo@montague.lit", Filename: "photo.png", Size: "1000"})
	require.NoError(t, err)
	assert.NotEqual(t, s.Path, again.Path, "identical requests get distinct slots")
	assert.Equal(t, 2, reg.Len())
}

func TestRequestSlotWithoutFilenameSegment(t *testing.T) {
	svc, _, _ := newService(Policy{MaxFileSize: 2000})

	s, err := svc.RequestSlot(context.Background(), Request{Sender: "romeo@montague.lit", Filename: "日本", Size: "10"})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(s.Path, "/"))
}

func TestRequestSlotPolicyOrder(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		req    Request
		cond   string
		typ    string
	}{
		{"missing filename", Policy{MaxFileSize: 10}, Request{Sender: "a@b.c", Size: "1"}, CondBadRequest, TypeModify},
		{"missing size", Policy{MaxFileSize: 10}, Request{Sender: "a@b.c", Filename: "x"}, CondBadRequest, TypeModify},
		{"size not a number", Policy{MaxFileSize: 10}, Request{Sender: "a@b.c", Filename: "x", Size: "ten"}, CondBadRequest, TypeModify},
		{"negative size", Policy{MaxFileSize: 10}, Request{Sender: "a@b.c", Filename: "x", Size: "-1"}, CondBadRequest, TypeModify},
		{"too large beats whitelist", Policy{MaxFileSize: 10, Whitelist: []string{"other.org"}}, Request{Sender: "a@b.c", Filename: "x", Size: "11"}, CondNotAcceptable, TypeModify},
		{"bad request beats too large", Policy{MaxFileSize: 10}, Request{Sender: "a@b.c", Size: "11"}, CondBadRequest, TypeModify},
		{"not whitelisted", Policy{MaxFileSize: 10, Whitelist: []string{"other.org"}}, Request{Sender: "a@b.c", Filename: "x", Size: "1"}, CondNotAllowed, TypeCancel},
		{"whitelist beats quota", Policy{MaxFileSize: 10, HardQuota: 1, Whitelist: []string{"other.org"}}, Request{Sender: "a@b.c", Filename: "x", Size: "5"}, CondNotAllowed, TypeCancel},
		{"over quota", Policy{MaxFileSize: 10, HardQuota: 4}, Request{Sender: "a@b.c", Filename: "x", Size: "5"}, CondNotAcceptable, TypeModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, reg, _ := newService(tt.policy)
			_, err := svc.RequestSlot(context.Background(), tt.req)
			rej := requireRejection(t, err, tt.cond)
			assert.Equal(t, tt.typ, rej.Type)
			assert.Zero(t, reg.Len(), "rejected requests never register a slot")
		})
	}
}

func TestRequestSlotTooLargeMentionsLimit(t *testing.T) {
	svc, _, _ := newService(Policy{MaxFileSize: 2000})
	_, err := svc.RequestSlot(context.Background(), Request{Sender: "a@b.c", Filename: "x", Size: "2001"})
	rej := requireRejection(t, err, CondNotAcceptable)
	assert.Contains(t, rej.Text, "2000")
	assert.EqualValues(t, 2000, rej.MaxFileSize)
}

func TestRequestSlotWhitelist(t *testing.T) {
	svc, _, _ := newService(Policy{MaxFileSize: 10, Whitelist: []string{"capulet.lit", "romeo@montague.lit"}})
	ctx := context.Background()

	_, err := svc.RequestSlot(ctx, Request{Sender: "juliet@capulet.lit", Filename: "x", Size: "1"})
	assert.NoError(t, err, "domain match")

	_, err = svc.RequestSlot(ctx, Request{Sender: "romeo@montague.lit", Filename: "x", Size: "1"})
	assert.NoError(t, err, "bare JID match")

	_, err = svc.RequestSlot(ctx, Request{Sender: "benvolio@montague.lit", Filename: "x", Size: "1"})
	requireRejection(t, err, CondNotAllowed)
}

func TestRequestSlotHardQuota(t *testing.T) {
	svc, reg, l := newService(Policy{MaxFileSize: 1000, HardQuota: 1000})
	ctx := context.Background()
	sender := "romeo@montague.lit"
	require.NoError(t, l.Recompute(ctx, slotpath.IdentityToken(sender), 600))

	_, err := svc.RequestSlot(ctx, Request{Sender: sender, Filename: "x", Size: "401"})
	rej := requireRejection(t, err, CondNotAcceptable)
	assert.Contains(t, rej.Text, "400")

	s, err := svc.RequestSlot(ctx, Request{Sender: sender, Filename: "x", Size: "400"})
	require.NoError(t, err)
	assert.True(t, reg.Pending(s.Path))

	// The pending 400 bytes are reserved, leaving nothing.
	_, err = svc.RequestSlot(ctx, Request{Sender: sender, Filename: "y", Size: "1"})
	requireRejection(t, err, CondNotAcceptable)

	// Other senders are unaffected.
	_, err = svc.RequestSlot(ctx, Request{Sender: "juliet@capulet.lit", Filename: "y", Size: "1000"})
	assert.NoError(t, err)
}

type failingLedger struct{ ledger.Ledger }

func (failingLedger) Get(context.Context, string) (int64, error) {
	return 0, errors.New("redis down")
}

func TestRequestSlotLedgerFailure(t *testing.T) {
	reg := registry.New()
	svc := NewService(Policy{MaxFileSize: 10, HardQuota: 10, PutURL: "http://x", GetURL: "http://x"}, reg, failingLedger{})

	_, err := svc.RequestSlot(context.Background(), Request{Sender: "a@b.c", Filename: "x", Size: "1"})
	rej := requireRejection(t, err, CondInternalServerError)
	assert.Equal(t, TypeWait, rej.Type)
	assert.Zero(t, reg.Len())
}
