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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInline(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"image/png", true},
		{"image/jpeg", true},
		{"image/svg+xml", false},
		{"text/html; charset=utf-8", false},
		{"application/octet-stream", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, inline(tt.ct), tt.ct)
	}
}

func TestDisposition(t *testing.T) {
	assert.Equal(t, "inline; filename=cat.jpg", disposition("image/jpeg", "cat.jpg"))
	assert.Equal(t, "attachment; filename=notes.txt", disposition("text/plain", "notes.txt"))
}
