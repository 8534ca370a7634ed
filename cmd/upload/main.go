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

// Command upload PUTs a local file to an upload slot URL and, when a GET
// URL is given, checks that the file is served back.
//
//	upload --put https://upload.example.com/put/<id>/<token>/a.png \
//	       --get https://upload.example.com/get/<id>/<token>/a.png a.png
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/fawa-io/httpupload/pkg/fwlog"
)

func main() {
	putURL := pflag.String("put", "", "PUT URL of the upload slot")
	getURL := pflag.String("get", "", "GET URL to verify after uploading")
	timeout := pflag.Duration("timeout", 5*time.Minute, "overall request timeout")
	pflag.Parse()

	if *putURL == "" || pflag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: upload --put URL [--get URL] FILE")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	n, err := upload(ctx, http.DefaultClient, *putURL, pflag.Arg(0))
	if err != nil {
		fwlog.Fatalf("Upload failed: %v", err)
	}
	fwlog.Infof("Uploaded %s", humanize.IBytes(uint64(n)))

	if *getURL == "" {
		return
	}
	ct, err := verify(ctx, http.DefaultClient, *getURL, n)
	if err != nil {
		fwlog.Fatalf("Verify failed: %v", err)
	}
	fwlog.Infof("Served as %s", ct)
}

// upload sends the file at path to putURL and returns its size.
func upload(ctx context.Context, client *http.Client, putURL, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, putURL, f)
	if err != nil {
		return 0, err
	}
	req.ContentLength = st.Size()

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("PUT %s: %s", putURL, resp.Status)
	}
	return st.Size(), nil
}

// verify HEADs getURL and checks the advertised length against size.
func verify(ctx context.Context, client *http.Client, getURL string, size int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, getURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HEAD %s: %s", getURL, resp.Status)
	}
	if resp.ContentLength != size {
		return "", fmt.Errorf("HEAD %s: served %d bytes, uploaded %d", getURL, resp.ContentLength, size)
	}
	return resp.Header.Get("Content-Type"), nil
}
