//go:build e2e

// Package e2e exercises the gateway against a live tenant. The settings are
// read the same way the server reads them; tests skip when they are missing.
package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/tonimelisma/onedrive-gateway/internal/app"
	"github.com/tonimelisma/onedrive-gateway/internal/config"
	"github.com/tonimelisma/onedrive-gateway/internal/logger"
	"github.com/tonimelisma/onedrive-gateway/pkg/onedrive"
)

const testTimeout = 2 * time.Minute

// newLiveApp builds an App over the real Graph client or skips the test.
func newLiveApp(t *testing.T) *app.App {
	t.Helper()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("loading configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Skipf("live settings incomplete: %v", err)
	}

	log := logger.New(cfg.Debug, logger.ParseFormat(cfg.LogFormat))
	var opts []onedrive.Option
	if cfg.Graph.BaseURL != "" {
		opts = append(opts, onedrive.WithBaseURL(cfg.Graph.BaseURL))
	}
	client := onedrive.NewClient(context.Background(), onedrive.Credentials{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
	}, log, opts...)
	return app.New(cfg, client, log)
}

// requireWebhook skips unless the registration file is configured.
func requireWebhook(t *testing.T, a *app.App) {
	t.Helper()
	if err := a.Config.ValidateWebhook(); err != nil {
		t.Skipf("webhook settings incomplete: %v", err)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}
