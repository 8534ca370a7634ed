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
	"io"
	"mime"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const defaultContentType = "application/octet-stream"

// contentType infers the media type from the file extension and falls back
// to sniffing the first bytes of r. r is rewound afterwards.
func contentType(name string, r io.ReadSeeker) string {
	if ext := path.Ext(name); ext != "" {
		if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
			return ct
		}
	}
	mt, err := mimetype.DetectReader(r)
	if _, serr := r.Seek(0, io.SeekStart); serr != nil || err != nil {
		return defaultContentType
	}
	return mt.String()
}

// inline reports whether a media type may be rendered in place. Raster
// images render inline in chat clients; everything else is downloaded.
func inline(ct string) bool {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

func disposition(ct, filename string) string {
	kind := "attachment"
	if inline(ct) {
		kind = "inline"
	}
	if d := mime.FormatMediaType(kind, map[string]string{"filename": filename}); d != "" {
		return d
	}
	return kind
}
