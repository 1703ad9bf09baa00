package cli

import (
	"bytes"
	"os"
	"syscall"
	"testing"
	"time"

	"fintrack/internal/config"
	applog "fintrack/internal/log"

	"github.com/stretchr/testify/assert"
)

func TestShutdownOn_RunsCleanupAndCancels(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})
	sig := make(chan os.Signal, 1)
	cleaned := make(chan struct{})

	ctx, done := shutdownOn(logger, sig, time.Second, func() { close(cleaned) })
	sig <- syscall.SIGTERM

	WaitForShutdown(ctx, done)
	select {
	case <-cleaned:
	default:
		t.Fatal("cleanup did not run")
	}
	assert.Contains(t, buf.String(), "Shutdown complete")
}

func TestShutdownOn_Timeout(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})
	sig := make(chan os.Signal, 1)
	release := make(chan struct{})
	defer close(release)

	ctx, done := shutdownOn(logger, sig, 20*time.Millisecond, func() { <-release })
	sig <- syscall.SIGINT

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not honour its timeout")
	}
	assert.Error(t, ctx.Err())
	assert.Contains(t, buf.String(), "Shutdown timeout reached")
}

func TestSetupLogger(t *testing.T) {
	logger := SetupLogger(&config.Config{LogLevel: "debug", LogFormat: "json"}, applog.ComponentImport)
	assert.Equal(t, applog.ComponentImport, logger.Component())
}
