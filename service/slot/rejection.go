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

package slot

import "fmt"

// Error types and conditions as defined by RFC 6120 stanza errors.
const (
	TypeModify = "modify"
	TypeCancel = "cancel"
	TypeWait   = "wait"

	CondBadRequest          = "bad-request"
	CondNotAcceptable       = "not-acceptable"
	CondNotAllowed          = "not-allowed"
	CondInternalServerError = "internal-server-error"
)

// Rejection is a policy failure reported back to the requester as a
// stanza error.
type Rejection struct {
	Type      string
	Condition string
	Text      string

	// MaxFileSize is set when the request was too large, so the protocol
	// layer can add the upload-specific file-too-large element.
	MaxFileSize int64
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s/%s: %s", r.Type, r.Condition, r.Text)
}

func reject(typ, cond, format string, v ...any) *Rejection {
	return &Rejection{Type: typ, Condition: cond, Text: fmt.Sprintf(format, v...)}
}
