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

// Package storage persists uploaded files. Paths handed to a Store are
// validated storage paths (see package slotpath); a Store never sees raw
// client input.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotExist is returned by Open for missing files and directories.
var ErrNotExist = errors.New("file does not exist")

// FileInfo describes a stored file.
type FileInfo struct {
	Path    string // storage path, slash separated
	Size    int64
	ModTime time.Time
}

// Object is an open stored file.
type Object interface {
	io.ReadSeeker
	io.Closer
}

// Store defines the operations the transfer and expiration services need.
type Store interface {
	// Put writes exactly the bytes read from r under path and returns the
	// number of bytes stored. size is the expected length.
	Put(ctx context.Context, path string, r io.Reader, size int64) (int64, error)

	// Open opens the file at path for reading.
	Open(ctx context.Context, path string) (Object, FileInfo, error)

	// Senders lists the identity tokens that own a top level directory.
	Senders(ctx context.Context) ([]string, error)

	// List returns every file below the sender's directory.
	List(ctx context.Context, sender string) ([]FileInfo, error)

	// Remove deletes a single file.
	Remove(ctx context.Context, path string) error

	// Prune removes directories below (and including) the sender's
	// directory that are empty, deepest first.
	Prune(ctx context.Context, sender string) error
}
