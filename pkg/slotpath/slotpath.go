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

// Package slotpath derives and validates the storage paths handed out as
// upload slots. A storage path has the shape
//
//	<identity token>/<slot token>[/<filename>]
//
// and is only ever built by this package; request paths coming back over
// HTTP are checked against the same shape before they touch storage.
package slotpath

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"path"
	"strings"

	"github.com/fawa-io/httpupload/pkg/util"
)

const (
	// TokenLength is the length of both identity and slot tokens.
	TokenLength = sha1.Size * 2

	// MaxFilenameLength bounds the sanitized filename segment.
	MaxFilenameLength = 128

	minSegments = 2
	maxSegments = 3
)

// ErrInvalidPath is returned for request paths that do not have the shape
// of a storage path.
var ErrInvalidPath = errors.New("invalid storage path")

// IdentityToken returns the hex SHA-1 of the bare JID. The same sender
// always maps to the same token.
func IdentityToken(sender string) string {
	sum := sha1.Sum([]byte(sender))
	return hex.EncodeToString(sum[:])
}

// NewSlotToken returns a fresh random directory name.
func NewSlotToken() (string, error) {
	return util.RandomString(TokenLength)
}

// SanitizeFilename keeps ASCII letters, digits and dots. A name made up
// only of dots sanitizes to the empty string.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r == '.' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.Trim(s, ".") == "" {
		return ""
	}
	if len(s) > MaxFilenameLength {
		ext := path.Ext(s)
		if len(ext) >= MaxFilenameLength {
			ext = ""
		}
		s = s[:MaxFilenameLength-len(ext)] + ext
	}
	return s
}

// Build joins the path segments. name must already be sanitized; when it is
// empty the path has two segments.
func Build(identity, slot, name string) string {
	if name == "" {
		return identity + "/" + slot
	}
	return identity + "/" + slot + "/" + name
}

// Sender returns the identity token segment of a storage path.
func Sender(p string) string {
	sender, _, _ := strings.Cut(p, "/")
	return sender
}

// Filename returns the last segment of a storage path.
func Filename(p string) string {
	return path.Base(p)
}

// Validate checks that p is a relative path of 2 or 3 non-empty segments,
// none of which is "." or "..".
func Validate(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.ContainsAny(p, "\\\x00") {
		return ErrInvalidPath
	}
	segs := strings.Split(p, "/")
	if len(segs) < minSegments || len(segs) > maxSegments {
		return ErrInvalidPath
	}
	for _, s := range segs {
		if s == "" || s == "." || s == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

// NormalizeRequestPath strips prefix from a URL path, collapses "." and ".."
// elements and validates the result. Paths that would resolve outside the
// storage root are rejected rather than rewritten.
func NormalizeRequestPath(raw, prefix string) (string, error) {
	prefix = strings.TrimRight(prefix, "/")
	if !strings.HasPrefix(raw, prefix+"/") {
		return "", ErrInvalidPath
	}
	rel := raw[len(prefix)+1:]
	if rel == "" || strings.HasPrefix(rel, "/") {
		return "", ErrInvalidPath
	}

	cleaned := path.Clean(rel)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	if err := Validate(cleaned); err != nil {
		return "", err
	}
	return cleaned, nil
}
