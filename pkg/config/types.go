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

package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/fawa-io/httpupload/pkg/fwlog"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Storage and ledger backends.
const (
	BackendFS     = "fs"
	BackendMinio  = "minio"
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	JID           string `mapstructure:"jid"`
	Secret        string `mapstructure:"secret"`
	ComponentAddr string `mapstructure:"component_addr"`
	HTTPAddr      string `mapstructure:"http_addr"`
	PutURL        string `mapstructure:"put_url"`
	GetURL        string `mapstructure:"get_url"`
	StoragePath   string `mapstructure:"storage_path"`

	// Sizes are human readable: "10MB", "100 MiB" or plain bytes.
	MaxFileSize   string `mapstructure:"max_file_size"`
	UserQuotaHard string `mapstructure:"user_quota_hard"`
	UserQuotaSoft string `mapstructure:"user_quota_soft"`

	Whitelist      []string      `mapstructure:"whitelist"`
	ExpireMaxAge   time.Duration `mapstructure:"expire_maxage"`
	ExpireInterval time.Duration `mapstructure:"expire_interval"`
	SlotTTL        time.Duration `mapstructure:"slot_ttl"`

	CertFile    string   `mapstructure:"certfile"`
	KeyFile     string   `mapstructure:"keyfile"`
	LogLevel    string   `mapstructure:"log_level"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	Storage StorageConfig `mapstructure:"storage"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
}

type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	Minio   MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type LedgerConfig struct {
	Backend string      `mapstructure:"backend"`
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Limits holds the parsed size settings in bytes. Zero quotas are disabled.
type Limits struct {
	MaxFileSize int64
	HardQuota   int64
	SoftQuota   int64
}

// Limits parses the human readable size settings.
func (c Config) Limits() (Limits, error) {
	var l Limits
	var err error
	if l.MaxFileSize, err = parseSize("max_file_size", c.MaxFileSize); err != nil {
		return Limits{}, err
	}
	if l.HardQuota, err = parseSize("user_quota_hard", c.UserQuotaHard); err != nil {
		return Limits{}, err
	}
	if l.SoftQuota, err = parseSize("user_quota_soft", c.UserQuotaSoft); err != nil {
		return Limits{}, err
	}
	return l, nil
}

func parseSize(key, s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
	}
	if n > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s: %q is too large", ErrInvalid, key, s)
	}
	return int64(n), nil
}

// Validate reports the first setting that would keep the component from
// starting.
func (c Config) Validate() error {
	invalid := func(format string, v ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, v...))
	}

	if c.JID == "" {
		return invalid("jid is required")
	}
	if c.Secret == "" {
		return invalid("secret is required")
	}
	for _, f := range []struct{ key, raw string }{{"put_url", c.PutURL}, {"get_url", c.GetURL}} {
		u, err := url.Parse(f.raw)
		if f.raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("%s must be an absolute http(s) URL, got %q", f.key, f.raw)
		}
	}

	limits, err := c.Limits()
	if err != nil {
		return err
	}
	if limits.MaxFileSize <= 0 {
		return invalid("max_file_size must be positive")
	}
	if limits.HardQuota > 0 && limits.SoftQuota > limits.HardQuota {
		return invalid("user_quota_soft (%d) exceeds user_quota_hard (%d)", limits.SoftQuota, limits.HardQuota)
	}

	if c.ExpireMaxAge < 0 {
		return invalid("expire_maxage must not be negative")
	}
	if c.SlotTTL < 0 {
		return invalid("slot_ttl must not be negative")
	}
	if (c.ExpireMaxAge > 0 || limits.SoftQuota > 0) && c.ExpireInterval <= 0 {
		return invalid("expire_interval must be positive when expiry or a soft quota is enabled")
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return invalid("certfile and keyfile must be set together")
	}
	if _, err := fwlog.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level: %v", err)
	}

	switch c.Storage.Backend {
	case BackendFS:
		if c.StoragePath == "" {
			return invalid("storage_path is required for the fs backend")
		}
	case BackendMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return invalid("storage.minio.endpoint and storage.minio.bucket are required")
		}
	default:
		return invalid("unknown storage.backend %q", c.Storage.Backend)
	}

	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Ledger.Redis.Addr == "" {
			return invalid("ledger.redis.addr is required")
		}
	default:
		return invalid("unknown ledger.backend %q", c.Ledger.Backend)
	}
	return nil
}
