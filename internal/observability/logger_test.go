package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kbase/jgipush/internal/config"
)

func TestNewLogger(t *testing.T) {
	t.Run("console with colors", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "jgipush",
			Colors:      config.ColorConfig{Info: "green"},
		}, zapcore.AddSync(&buf))
		logger.Named("organism").Info("Organism page ready.")
		require.NoError(t, logger.Sync())

		out := buf.String()
		assert.Contains(t, out, colorGreen+"INFO"+colorReset)
		assert.Contains(t, out, "jgipush.organism.")
		assert.Contains(t, out, "Organism page ready.")
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "jgipush"}, zapcore.AddSync(&buf))
		logger.Warn("Push failed.", zap.String("organism", "BlaspoFA"))
		logger.Debug("Dropped below the level.")
		require.NoError(t, logger.Sync())

		var entry map[string]any
		require.NoError(t, jsoniter.Unmarshal(buf.Bytes(), &entry), "one JSON object expected, got %q", buf.String())
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "jgipush", entry["logger"])
		assert.Equal(t, "Push failed.", entry["msg"])
		assert.Equal(t, "BlaspoFA", entry["organism"])
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLogger(config.LoggerConfig{Level: "loud", Format: "json"}, zapcore.AddSync(&buf))
		logger.Debug("hidden")
		logger.Info("shown")
		require.NoError(t, logger.Sync())
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("rotated file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "jgipush.log")
		logger := NewLogger(config.LoggerConfig{Level: "info", Format: "console", LogFile: path, MaxSize: 1}, zapcore.AddSync(&bytes.Buffer{}))
		logger.Error("Written to the file.")
		_ = logger.Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"Written to the file."`)
	})
}

func TestInitialize(t *testing.T) {
	t.Cleanup(ResetForTest)

	ResetForTest()
	assert.Contains(t, GetLogger().Name(), "fallback")

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "first"}, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "second"}, zapcore.AddSync(&second))

	logger := GetLogger()
	assert.Same(t, globalLogger.Load(), logger)
	logger.Info("hello")
	Sync()
	assert.Contains(t, first.String(), `"logger":"first"`)
	assert.Empty(t, second.String())
}
