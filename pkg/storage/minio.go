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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/fawa-io/httpupload/pkg/fwlog"
)

// MinioOptions configures an S3 compatible backend.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore keeps files as objects in a MinIO (or any S3 compatible)
// bucket. Object keys are storage paths. Buckets have no directories, so
// Prune is a no-op.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore creates the client and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	fwlog.Infof("Initializing MinIO storage: endpoint=%s bucket=%s ssl=%v", opts.Endpoint, opts.Bucket, opts.UseSSL)

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", opts.Bucket, err)
		}
		fwlog.Infof("Successfully created MinIO bucket: %s", opts.Bucket)
	}

	return &MinioStore{client: client, bucket: opts.Bucket}, nil
}

func (m *MinioStore) Put(ctx context.Context, p string, r io.Reader, size int64) (int64, error) {
	cr := &countingReader{r: r}
	info, err := m.client.PutObject(ctx, m.bucket, p, cr, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		if cr.eof && cr.n < size {
			return cr.n, fmt.Errorf("put object %q: %w", p, io.ErrUnexpectedEOF)
		}
		return cr.n, fmt.Errorf("put object %q: %w", p, err)
	}
	return info.Size, nil
}

// countingReader records how much of a body was consumed and whether it
// ended.
type countingReader struct {
	r   io.Reader
	n   int64
	eof bool
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err == io.EOF {
		c.eof = true
	}
	return n, err
}

func (m *MinioStore) Open(ctx context.Context, p string) (Object, FileInfo, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, p, minio.GetObjectOptions{})
	if err != nil {
		return nil, FileInfo{}, translateMinioErr(p, err)
	}
	st, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, FileInfo{}, translateMinioErr(p, err)
	}
	return obj, FileInfo{Path: p, Size: st.Size, ModTime: st.LastModified}, nil
}

func (m *MinioStore) Senders(ctx context.Context) ([]string, error) {
	var senders []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, "/") {
			senders = append(senders, strings.TrimSuffix(obj.Key, "/"))
		}
	}
	return senders, nil
}

func (m *MinioStore) List(ctx context.Context, sender string) ([]FileInfo, error) {
	var files []FileInfo
	opts := minio.ListObjectsOptions{Prefix: sender + "/", Recursive: true}
	for obj := range m.client.ListObjects(ctx, m.bucket, opts) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		files = append(files, FileInfo{Path: obj.Key, Size: obj.Size, ModTime: obj.LastModified})
	}
	return files, nil
}

func (m *MinioStore) Remove(ctx context.Context, p string) error {
	return m.client.RemoveObject(ctx, m.bucket, p, minio.RemoveObjectOptions{})
}

func (m *MinioStore) Prune(context.Context, string) error {
	return nil
}

func translateMinioErr(p string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("open %s: %w", p, ErrNotExist)
	}
	return err
}
