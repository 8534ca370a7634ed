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

package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fawa-io/httpupload/pkg/ledger"
	"github.com/fawa-io/httpupload/pkg/registry"
	"github.com/fawa-io/httpupload/pkg/storage"
	"github.com/fawa-io/httpupload/service/transfer"
)

func TestUploadAndVerify(t *testing.T) {
	const p = "0123456789abcdef0123456789abcdef01234567/TOKEN/hello.txt"

	slots := registry.New()
	require.NoError(t, slots.Add(registry.Slot{Path: p, Sender: "0123456789abcdef0123456789abcdef01234567", Size: 12, Created: time.Now()}, nil))
	h := transfer.NewHandler(transfer.Options{MaxFileSize: 1 << 10, PutPrefix: "/put", GetPrefix: "/get"},
		storage.NewFSStore(afero.NewMemMapFs()), slots, ledger.NewMemory())
	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	local := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(local, []byte("hello world\n"), 0o600))

	ctx := context.Background()
	n, err := upload(ctx, srv.Client(), srv.URL+"/put/"+p, local)
	require.NoError(t, err)
	assert.EqualValues(t, 12, n)

	ct, err := verify(ctx, srv.Client(), srv.URL+"/get/"+p, n)
	require.NoError(t, err)
	assert.Equal(t, "text/plain; charset=utf-8", ct)

	_, err = upload(ctx, srv.Client(), srv.URL+"/put/"+p, local)
	assert.ErrorContains(t, err, "403")

	_, err = verify(ctx, srv.Client(), srv.URL+"/get/"+p, 99)
	assert.ErrorContains(t, err, "served 12 bytes")

	_, err = verify(ctx, srv.Client(), srv.URL+"/get/missing/file", 1)
	assert.ErrorContains(t, err, "404")
}

func TestUploadMissingFile(t *testing.T) {
	_, err := upload(context.Background(), http.DefaultClient, "http://127.0.0.1:1/put", filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
