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

// Package cors configures cross-origin access so web chat clients can PUT
// uploads and fetch files from another origin.
package cors

import (
	"net/http"

	"github.com/rs/cors"
)

// NewCORS returns a CORS handler for the upload endpoints. An empty
// origins list allows every origin.
func NewCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodPut,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "Content-Length", "Authorization"},
		ExposedHeaders: []string{"Content-Length", "Content-Disposition", "Content-Type"},
		MaxAge:         7200,
	})
}
