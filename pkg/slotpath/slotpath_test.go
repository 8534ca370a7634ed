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

package slotpath

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityToken(t *testing.T) {
	a := IdentityToken("romeo@montague.lit")
	assert.Len(t, a, TokenLength)
	assert.Equal(t, a, IdentityToken("romeo@montague.lit"))
	assert.NotEqual(t, a, IdentityToken("juliet@capulet.lit"))
	assert.Equal(t, "da39a3ee5e6b4b0d3255bfef95601890afd80709", IdentityToken(""))
}

func TestNewSlotToken(t *testing.T) {
	a, err := NewSlotToken()
	require.NoError(t, err)
	b, err := NewSlotToken()
	require.NoError(t, err)
	assert.Len(t, a, TokenLength)
	assert.NotEqual(t, a, b)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.png", "photo.png"},
		{"my photo (1).png", "myphoto1.png"},
		{"../../etc/passwd", "....etcpasswd"},
		{"résumé.pdf", "rsum.pdf"},
		{"  trailing  ", "trailing"},
		{"..", ""},
		{".", ""},
		{"/////", ""},
		{"", ""},
		{"ファイル", ""},
	}
	for _, tt := range tests {
		got := SanitizeFilename(tt.in)
		assert.Equal(t, tt.want, got, "SanitizeFilename(%q)", tt.in)
		assert.Regexp(t, `^[A-Za-z0-9.]*$`, got)
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := strings.Repeat("a", 300) + ".jpeg"
	got := SanitizeFilename(long)
	assert.Len(t, got, MaxFilenameLength)
	assert.True(t, strings.HasSuffix(got, ".jpeg"))
}

func TestBuild(t *testing.T) {
	assert.Equal(t, "id/slot/a.png", Build("id", "slot", "a.png"))
	assert.Equal(t, "id/slot", Build("id", "slot", ""))
	assert.NoError(t, Validate(Build("id", "slot", "a.png")))
	assert.NoError(t, Validate(Build("id", "slot", "")))
	assert.Equal(t, "id", Sender("id/slot/a.png"))
	assert.Equal(t, "a.png", Filename("id/slot/a.png"))
}

func TestNormalizeRequestPath(t *testing.T) {
	tests := []struct {
		raw    string
		prefix string
		want   string
		ok     bool
	}{
		{"/aaa/bbb/photo.png", "", "aaa/bbb/photo.png", true},
		{"/aaa/bbb", "", "aaa/bbb", true},
		{"/upload/aaa/bbb/c.txt", "/upload", "aaa/bbb/c.txt", true},
		{"/upload/aaa/bbb/c.txt", "/upload/", "aaa/bbb/c.txt", true},
		{"/aaa/./bbb/c.txt", "", "aaa/bbb/c.txt", true},
		{"/aaa/x/../bbb", "", "aaa/bbb", true},
		{"/aaa/bbb/", "", "aaa/bbb", true},

		{"/aaa", "", "", false},
		{"/aaa/bbb/ccc/ddd", "", "", false},
		{"/../etc/passwd", "", "", false},
		{"/aaa/../../etc/passwd", "", "", false},
		{"/..", "", "", false},
		{"//etc/passwd", "", "", false},
		{"/", "", "", false},
		{"", "", "", false},
		{"/other/aaa/bbb", "/upload", "", false},
		{"/uploadaaa/bbb", "/upload", "", false},
		{"/aaa/b\\b", "", "", false},
		{"/aaa/b\x00b", "", "", false},
		{"/aaa/bbb/..", "", "", false},
	}
	for _, tt := range tests {
		got, err := NormalizeRequestPath(tt.raw, tt.prefix)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidPath, "NormalizeRequestPath(%q, %q) = %q", tt.raw, tt.prefix, got)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestNormalizeNeverEscapes(t *testing.T) {
	parts := []string{"a", "b", "..", ".", "", "c.txt"}
	var walk func(prefix string, depth int)
	walk = func(prefix string, depth int) {
		if depth == 0 {
			got, err := NormalizeRequestPath(prefix, "")
			if err != nil {
				return
			}
			assert.NoError(t, Validate(got))
			assert.False(t, strings.HasPrefix(got, ".."), "%q escaped as %q", prefix, got)
			assert.False(t, strings.HasPrefix(got, "/"), "%q escaped as %q", prefix, got)
			return
		}
		for _, p := range parts {
			walk(prefix+"/"+p, depth-1)
		}
	}
	walk("", 4)
}

func TestNormalizeRoundTrip(t *testing.T) {
	p := Build(IdentityToken("romeo@montague.lit"), "AbC123", SanitizeFilename("photo.png"))
	got, err := NormalizeRequestPath("/"+p, "")
	require.NoError(t, err)
	assert.Equal(t, p, got)
}
