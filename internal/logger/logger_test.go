package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{"info", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warn", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"loud", zapcore.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitWithOptions_WritesToFile(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	path := filepath.Join(t.TempDir(), "pagepack.log")
	require.NoError(t, InitWithOptions(Options{Level: "debug", Format: "json", Paths: []string{path}}))

	L().Infow("page fetched", "page", 3)
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"page fetched"`), "log file: %s", data)
	assert.True(t, strings.Contains(string(data), `"page":3`), "log file: %s", data)
}

func TestInit_InvalidLevel(t *testing.T) {
	assert.Error(t, Init("verbose", "console"))
}

func TestWithFields(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))

	WithFields(map[string]interface{}{"gallery": "177013"}).Info("queued")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "queued", entries[0].Message)
	assert.Equal(t, "177013", entries[0].ContextMap()["gallery"])
}

func TestSetLogger_ConcurrentWithLogging(t *testing.T) {
	t.Cleanup(func() { SetLogger(nil) })

	core, logs := observer.New(zap.DebugLevel)
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				L().Debugw("page fetched", "worker", i)
			}
		}()
		go func() {
			defer wg.Done()
			for range 20 {
				SetLogger(zap.New(core))
				_ = GetZapLogger()
			}
		}()
	}
	wg.Wait()

	SetLogger(zap.New(core))
	before := logs.Len()
	L().Info("after swap")
	assert.Equal(t, before+1, logs.Len())
}
