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

package main

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/fawa-io/httpupload/pkg/config"
	"github.com/fawa-io/httpupload/pkg/cors"
	"github.com/fawa-io/httpupload/pkg/fwlog"
	"github.com/fawa-io/httpupload/pkg/ledger"
	"github.com/fawa-io/httpupload/pkg/registry"
	"github.com/fawa-io/httpupload/pkg/storage"
	"github.com/fawa-io/httpupload/service/component"
	"github.com/fawa-io/httpupload/service/expire"
	"github.com/fawa-io/httpupload/service/slot"
	"github.com/fawa-io/httpupload/service/transfer"
)

func main() {
	if err := config.Initconfig(); err != nil {
		fwlog.Fatalf("Failed to initialize configuration: %v", err)
	}
	cfg := config.Get()
	applyLogLevel(cfg)
	config.OnChange(applyLogLevel)

	limits, err := cfg.Limits()
	if err != nil {
		fwlog.Fatalf("Invalid limits: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg)
	if err != nil {
		fwlog.Fatalf("Failed to open storage: %v", err)
	}
	usage, closeLedger, err := newLedger(ctx, cfg)
	if err != nil {
		fwlog.Fatalf("Failed to open quota ledger: %v", err)
	}
	defer closeLedger()

	slots := registry.New()

	engine := expire.NewEngine(store, usage, slots, expire.Options{
		MaxAge:    cfg.ExpireMaxAge,
		SoftQuota: limits.SoftQuota,
		Interval:  cfg.ExpireInterval,
		SlotTTL:   cfg.SlotTTL,
	})
	// Seed the ledger from what is already stored before taking requests.
	if err := engine.Sweep(ctx, expire.ModeQuotaOnly); err != nil {
		fwlog.Fatalf("Failed to compute initial usage: %v", err)
	}

	slotSvc := slot.NewService(slot.Policy{
		MaxFileSize: limits.MaxFileSize,
		Whitelist:   cfg.Whitelist,
		HardQuota:   limits.HardQuota,
		PutURL:      cfg.PutURL,
		GetURL:      cfg.GetURL,
	}, slots, usage)

	putPrefix, getPrefix, err := urlPrefixes(cfg)
	if err != nil {
		fwlog.Fatalf("Invalid URLs: %v", err)
	}
	transferHdr := transfer.NewHandler(transfer.Options{
		MaxFileSize: limits.MaxFileSize,
		HardQuota:   limits.HardQuota,
		PutPrefix:   putPrefix,
		GetPrefix:   getPrefix,
	}, store, slots, usage)

	handler := cors.NewCORS(cfg.CORSOrigins).Handler(transferHdr.Routes())
	if cfg.CertFile == "" {
		// h2c: HTTP/2 over cleartext when TLS is off.
		handler = h2c.NewHandler(handler, &http2.Server{})
	}
	uploadSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	comp := component.New(component.Options{
		JID:    cfg.JID,
		Secret: cfg.Secret,
		Addr:   cfg.ComponentAddr,
	}, slotSvc)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fwlog.Infof("HTTP server starting on %v", cfg.HTTPAddr)
		var err error
		if cfg.CertFile != "" {
			err = uploadSrv.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = uploadSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		fwlog.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return uploadSrv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return comp.Run(ctx)
	})

	if cfg.ExpireMaxAge > 0 || limits.SoftQuota > 0 || cfg.SlotTTL > 0 {
		g.Go(func() error {
			return engine.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil {
		fwlog.Fatalf("Server stopped: %v", err)
	}
	fwlog.Info("Server shutdown complete")
}

func applyLogLevel(cfg config.Config) {
	level, err := fwlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		fwlog.Warnf("Ignoring log level: %v", err)
		return
	}
	fwlog.SetLevel(level)
}

func newStore(ctx context.Context, cfg config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMinio:
		m := cfg.Storage.Minio
		return storage.NewMinioStore(ctx, storage.MinioOptions{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
	default:
		return storage.NewLocalStore(cfg.StoragePath)
	}
}

func newLedger(ctx context.Context, cfg config.Config) (ledger.Ledger, func(), error) {
	if cfg.Ledger.Backend != config.BackendRedis {
		return ledger.NewMemory(), func() {}, nil
	}
	r := cfg.Ledger.Redis
	l, err := ledger.NewRedis(ctx, r.Addr, r.Password, r.DB, r.Prefix)
	if err != nil {
		return nil, nil, err
	}
	return l, func() {
		if err := l.Close(); err != nil {
			fwlog.Errorf("Error closing redis ledger: %v", err)
		}
	}, nil
}

// urlPrefixes returns the path parts of the public PUT and GET URLs, which
// the HTTP server must route on.
func urlPrefixes(cfg config.Config) (string, string, error) {
	put, err := url.Parse(cfg.PutURL)
	if err != nil {
		return "", "", err
	}
	get, err := url.Parse(cfg.GetURL)
	if err != nil {
		return "", "", err
	}
	return put.Path, get.Path, nil
}
