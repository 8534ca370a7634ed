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

package util

import (
	"errors"
	"io"

	"github.com/spf13/afero"
)

const (
	// the owner can make/remove files inside the directory
	privateDirMode = 0700
)

// Exist reports whether dirpath exists and is a directory.
func Exist(fs afero.Fs, dirpath string) bool {
	ok, err := afero.DirExists(fs, dirpath)
	return err == nil && ok
}

// CreateDir creates dirpath and any missing parents. It is not an error
// for the directory to exist already.
func CreateDir(fs afero.Fs, dirpath string) error {
	if Exist(fs, dirpath) {
		return nil
	}
	return fs.MkdirAll(dirpath, privateDirMode)
}

// IsEmptyDir reports whether dirpath is a directory with no entries.
func IsEmptyDir(fs afero.Fs, dirpath string) (bool, error) {
	f, err := fs.Open(dirpath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	names, err := f.Readdirnames(1)
	if len(names) > 0 {
		return false, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return true, nil
}
