package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServeLogicStopsWithContext(t *testing.T) {
	cfg := testConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := serveLogic(ctx, newTestApp(cfg, &MockSDK{}), true)
	assert.NoError(t, err)
}

func TestServeLogicRejectsBadManifest(t *testing.T) {
	cfg := webhookConfig(t.TempDir())
	cfg.SidecarManifest = "not json"

	err := serveLogic(context.Background(), newTestApp(cfg, &MockSDK{}), false)
	assert.Error(t, err)
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "webhook", "tree", "access"} {
		assert.True(t, names[want], want)
	}
}
