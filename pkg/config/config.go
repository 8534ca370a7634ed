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

// Package config loads the component configuration from flags, the
// environment, an optional .env file and a YAML config file, and reloads
// it when the file changes.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/httpupload/pkg/fwlog"
)

// EnvPrefix prefixes every environment variable, e.g. HTTPUPLOAD_SECRET
// or HTTPUPLOAD_LEDGER_REDIS_ADDR.
const EnvPrefix = "HTTPUPLOAD"

var (
	once sync.Once

	mu sync.RWMutex

	config Config

	hooks []func(Config)
)

func Initconfig() error {
	var initErr error
	once.Do(func() {
		initErr = LoadAndWatch()
	})
	return initErr
}

func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

// OnChange registers fn to run with the new configuration after every
// successful reload.
func OnChange(fn func(Config)) {
	mu.Lock()
	defer mu.Unlock()
	hooks = append(hooks, fn)
}

func LoadAndWatch() error {
	pflag.StringP("config", "c", "", "Path to the configuration file.")
	pflag.String("jid", "", "Component JID, e.g. 'upload.example.com'.")
	pflag.String("component_addr", "", "Address of the XMPP server component port.")
	pflag.String("http_addr", "", "Listen address of the HTTP server (e.g., ':8080').")
	pflag.String("storage_path", "", "Directory that stores uploaded files.")
	pflag.String("log_level", "", "Log level: debug, info, warn, error.")
	pflag.Parse()

	if err := godotenv.Load(); err != nil {
		fwlog.Debugf("no .env file loaded: %v", err)
	}

	v := viper.GetViper()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return fmt.Errorf("failed to bind pflags: %w", err)
	}

	cfg, err := load(v)
	if err != nil {
		return err
	}

	mu.Lock()
	config = cfg
	mu.Unlock()

	if v.ConfigFileUsed() == "" {
		return nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("config file %s changed, reloading", e.Name)

		cfg, err := decode(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			fwlog.Errorf("keeping previous configuration: %v", err)
			return
		}

		mu.Lock()
		config = cfg
		fns := append([]func(Config){}, hooks...)
		mu.Unlock()

		for _, fn := range fns {
			fn(cfg)
		}
		fwlog.Infof("configuration reloaded")
	})
	v.WatchConfig()

	return nil
}

// load reads v's sources and returns the validated configuration.
func load(v *viper.Viper) (Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/httpupload/")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found, using flags and environment.")
		} else {
			return Config{}, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("the configuration cannot be decoded into the struct: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("jid", "")
	v.SetDefault("secret", "")
	v.SetDefault("component_addr", "localhost:5347")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("put_url", "")
	v.SetDefault("get_url", "")
	v.SetDefault("storage_path", "/var/lib/httpupload")
	v.SetDefault("max_file_size", "10MiB")
	v.SetDefault("whitelist", []string{})
	v.SetDefault("user_quota_hard", "0")
	v.SetDefault("user_quota_soft", "0")
	v.SetDefault("expire_maxage", "0s")
	v.SetDefault("expire_interval", "1h")
	v.SetDefault("slot_ttl", "1h")
	v.SetDefault("certfile", "")
	v.SetDefault("keyfile", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("cors_origins", []string{"*"})

	v.SetDefault("storage.backend", BackendFS)
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.bucket", "httpupload")
	v.SetDefault("storage.minio.use_ssl", false)

	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.redis.addr", "localhost:6379")
	v.SetDefault("ledger.redis.password", "")
	v.SetDefault("ledger.redis.db", 0)
	v.SetDefault("ledger.redis.prefix", "httpupload:usage:")
}
