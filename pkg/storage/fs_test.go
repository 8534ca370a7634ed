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

package storage

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStorePutOpen(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := NewFSStore(fs)

	n, err := s.Put(ctx, "alice/slot1/hello.txt", strings.NewReader("hello world"), 11)
	require.NoError(t, err)
	assert.EqualValues(t, 11, n)

	obj, info, err := s.Open(ctx, "alice/slot1/hello.txt")
	require.NoError(t, err)
	defer obj.Close()
	assert.EqualValues(t, 11, info.Size)
	assert.Equal(t, "alice/slot1/hello.txt", info.Path)

	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}

// prunedFs fails the first misses file creations as if a sweep had just
// removed the parent directory.
type prunedFs struct {
	afero.Fs
	misses int
	calls  int
}

func (f *prunedFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&os.O_CREATE != 0 {
		f.calls++
		if f.calls <= f.misses {
			return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrNotExist}
		}
	}
	return f.Fs.OpenFile(name, flag, perm)
}

func TestFSStorePutRetriesPrunedParent(t *testing.T) {
	tests := []struct {
		name      string
		misses    int
		wantErr   bool
		wantCalls int
	}{
		{name: "no race", misses: 0, wantCalls: 1},
		{name: "pruned twice", misses: 2, wantCalls: 3},
		{name: "pruned until the last attempt", misses: createAttempts - 1, wantCalls: createAttempts},
		{name: "gives up", misses: createAttempts + 3, wantErr: true, wantCalls: createAttempts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := &prunedFs{Fs: afero.NewMemMapFs(), misses: tt.misses}
			s := NewFSStore(fs)

			n, err := s.Put(context.Background(), "alice/slot1/f.txt", strings.NewReader("data"), 4)
			assert.Equal(t, tt.wantCalls, fs.calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, os.ErrNotExist)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, 4, n)
		})
	}
}

func TestFSStoreOpenMissing(t *testing.T) {
	ctx := context.Background()
	s := NewFSStore(afero.NewMemMapFs())

	_, _, err := s.Open(ctx, "alice/slot1/none.txt")
	assert.ErrorIs(t, err, ErrNotExist)

	_, err = s.Put(ctx, "alice/slot1/f", strings.NewReader("x"), 1)
	require.NoError(t, err)
	_, _, err = s.Open(ctx, "alice/slot1")
	assert.ErrorIs(t, err, ErrNotExist, "directories are not files")
}

func TestFSStoreListAndSenders(t *testing.T) {
	ctx := context.Background()
	s := NewFSStore(afero.NewMemMapFs())

	for _, p := range []string{"alice/s1/a.txt", "alice/s2", "bob/s3/b.txt"} {
		_, err := s.Put(ctx, p, strings.NewReader("data"), 4)
		require.NoError(t, err)
	}

	senders, err := s.Senders(ctx)
	require.NoError(t, err)
	sort.Strings(senders)
	assert.Equal(t, []string{"alice", "bob"}, senders)

	files, err := s.List(ctx, "alice")
	require.NoError(t, err)
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
		assert.EqualValues(t, 4, f.Size)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"alice/s1/a.txt", "alice/s2"}, paths)

	files, err = s.List(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestFSStoreRemoveAndPrune(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := NewFSStore(fs)

	_, err := s.Put(ctx, "alice/s1/a.txt", strings.NewReader("a"), 1)
	require.NoError(t, err)
	_, err = s.Put(ctx, "alice/s2/b.txt", strings.NewReader("b"), 1)
	require.NoError(t, err)

	require.NoError(t, s.Remove(ctx, "alice/s1/a.txt"))
	require.NoError(t, s.Prune(ctx, "alice"))

	exists, _ := afero.DirExists(fs, "/alice/s1")
	assert.False(t, exists, "emptied slot dir is pruned")
	exists, _ = afero.DirExists(fs, "/alice/s2")
	assert.True(t, exists)

	require.NoError(t, s.Remove(ctx, "alice/s2/b.txt"))
	require.NoError(t, s.Prune(ctx, "alice"))
	exists, _ = afero.DirExists(fs, "/alice")
	assert.False(t, exists, "emptied sender dir is pruned")

	assert.ErrorIs(t, s.Remove(ctx, "alice/s2/b.txt"), ErrNotExist)
}

func TestFSStoreModTime(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	s := NewFSStore(fs)

	_, err := s.Put(ctx, "alice/s1/a.txt", strings.NewReader("a"), 1)
	require.NoError(t, err)
	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, fs.Chtimes("/alice/s1/a.txt", old, old))

	files, err := s.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].ModTime.Equal(old))
}

func TestNewLocalStoreConfinesPaths(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(root)
	require.NoError(t, err)

	_, err = s.Put(ctx, "alice/s1/a.txt", strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.FileExists(t, root+"/alice/s1/a.txt")

	_, _, err = s.Open(ctx, "../../etc/passwd")
	assert.Error(t, err)
}
