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
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/pkg/util"
)

const (
	dirMode  = 0o700
	fileMode = 0o600

	// createAttempts bounds how often Put recreates a parent directory that
	// a concurrent Prune removed.
	createAttempts = 5
)

// FSStore keeps files on an afero filesystem rooted at "/".
type FSStore struct {
	fs afero.Fs
}

// NewFSStore wraps fs. The storage root is fs's "/".
func NewFSStore(fs afero.Fs) *FSStore {
	return &FSStore{fs: fs}
}

// NewLocalStore creates root if needed and returns a store confined to it.
func NewLocalStore(root string) (*FSStore, error) {
	osfs := afero.NewOsFs()
	if err := util.CreateDir(osfs, root); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", root, err)
	}
	return NewFSStore(afero.NewBasePathFs(osfs, root)), nil
}

func abs(p string) string {
	return "/" + p
}

func (s *FSStore) Put(_ context.Context, p string, r io.Reader, _ int64) (int64, error) {
	name := abs(p)
	f, err := s.create(name)
	for i := 1; i < createAttempts && errors.Is(err, os.ErrNotExist); i++ {
		f, err = s.create(name)
	}
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func (s *FSStore) create(name string) (afero.File, error) {
	if err := s.fs.MkdirAll(path.Dir(name), dirMode); err != nil {
		return nil, err
	}
	return s.fs.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fileMode)
}

func (s *FSStore) Open(_ context.Context, p string) (Object, FileInfo, error) {
	f, err := s.fs.Open(abs(p))
	if errors.Is(err, os.ErrNotExist) {
		return nil, FileInfo{}, fmt.Errorf("open %s: %w", p, ErrNotExist)
	}
	if err != nil {
		return nil, FileInfo{}, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, FileInfo{}, err
	}
	if st.IsDir() {
		f.Close()
		return nil, FileInfo{}, fmt.Errorf("open %s: %w", p, ErrNotExist)
	}
	return f, FileInfo{Path: p, Size: st.Size(), ModTime: st.ModTime()}, nil
}

func (s *FSStore) Senders(_ context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, err
	}
	var senders []string
	for _, e := range entries {
		if e.IsDir() {
			senders = append(senders, e.Name())
		}
	}
	return senders, nil
}

func (s *FSStore) List(_ context.Context, sender string) ([]FileInfo, error) {
	var files []FileInfo
	err := afero.Walk(s.fs, abs(sender), func(name string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			// Files may vanish under a concurrent sweep or upload retry.
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		files = append(files, FileInfo{
			Path:    strings.TrimPrefix(filepath.ToSlash(name), "/"),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	return files, err
}

func (s *FSStore) Remove(_ context.Context, p string) error {
	if err := s.fs.Remove(abs(p)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, ErrNotExist)
		}
		return err
	}
	return nil
}

func (s *FSStore) Prune(_ context.Context, sender string) error {
	var dirs []string
	err := afero.Walk(s.fs, abs(sender), func(name string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			if errors.Is(walkErr, os.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if info.IsDir() {
			dirs = append(dirs, filepath.ToSlash(name))
		}
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], "/") > strings.Count(dirs[j], "/")
	})
	for _, d := range dirs {
		empty, err := util.IsEmptyDir(s.fs, d)
		if err != nil || !empty {
			continue
		}
		if err := s.fs.Remove(d); err != nil && !errors.Is(err, os.ErrNotExist) {
			fwlog.Warnf("storage: remove empty dir %s: %v", d, err)
		}
	}
	return nil
}
