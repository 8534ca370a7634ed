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

package transfer

import (
	"context"
	"io"

	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/pkg/ledger"
)

// quotaReader credits every byte it hands out to the sender's ledger
// entry, so usage grows while a slow upload is still in flight.
type quotaReader struct {
	ctx    context.Context
	r      io.Reader
	ledger ledger.Ledger
	sender string
	n      int64
}

func (q *quotaReader) Read(p []byte) (int, error) {
	n, err := q.r.Read(p)
	if n > 0 {
		q.n += int64(n)
		if lerr := q.ledger.Increment(q.ctx, q.sender, int64(n)); lerr != nil {
			fwlog.Errorf("transfer: credit %d bytes to %s: %v", n, q.sender, lerr)
			return n, lerr
		}
	}
	return n, err
}
