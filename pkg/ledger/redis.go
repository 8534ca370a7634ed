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

package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/fawa-io/httpupload/pkg/fwlog"
)

// DefaultKeyPrefix namespaces usage counters in a shared Redis/Dragonfly.
const DefaultKeyPrefix = "httpupload:usage:"

// incrementScript adds ARGV[1] to KEYS[1] and clamps the result at zero in
// one server side step.
const incrementScript = `
local n = redis.call('INCRBY', KEYS[1], ARGV[1])
if n < 0 then
	redis.call('SET', KEYS[1], 0)
	return 0
end
return n
`

// Redis implements Ledger on top of Redis or Dragonfly. Every update is a
// single server side command or script so no client side lock is needed.
type Redis struct {
	client redis.Cmdable
	prefix string
}

// NewRedis connects to addr and checks the connection.
func NewRedis(ctx context.Context, addr, password string, db int, prefix string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client redis.Cmdable, prefix string) *Redis {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(sender string) string {
	return r.prefix + sender
}

func (r *Redis) Get(ctx context.Context, sender string) (int64, error) {
	val, err := r.client.Get(ctx, r.key(sender)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get usage: %w", err)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse usage %q: %w", val, err)
	}
	return clamp(n), nil
}

func (r *Redis) Increment(ctx context.Context, sender string, delta int64) error {
	if err := r.client.Eval(ctx, incrementScript, []string{r.key(sender)}, delta).Err(); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

func (r *Redis) Recompute(ctx context.Context, sender string, bytes int64) error {
	if err := r.client.Set(ctx, r.key(sender), clamp(bytes), 0).Err(); err != nil {
		return fmt.Errorf("recompute usage: %w", err)
	}
	return nil
}

// Close closes the underlying connection if it owns one.
func (r *Redis) Close() error {
	switch c := r.client.(type) {
	case *redis.Client:
		fwlog.Info("Closing Redis/Dragonfly connection...")
		return c.Close()
	case *redis.ClusterClient:
		fwlog.Info("Closing Redis/Dragonfly cluster connection...")
		return c.Close()
	}
	return nil
}
