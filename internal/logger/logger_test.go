package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevels(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{FatalLevel, "FATAL"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.level.String())
		})
	}
}

func TestStructuredLogger(t *testing.T) {
	t.Run("LogLevelFiltering", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&buf, WarnLevel)

		log.Debug("debug message")
		assert.Empty(t, buf.String(), "debug message should be filtered")

		log.Info("info message")
		assert.Empty(t, buf.String(), "info message should be filtered")

		log.Warn("warn message")
		assert.NotEmpty(t, buf.String(), "warn message should pass the filter")
	})

	t.Run("StructuredFields", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&buf, DebugLevel)

		log.Info("connection established", String("connection_id", "c-1"), Int("index", 3))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "connection established", entry["message"])
		assert.Equal(t, "c-1", entry["connection_id"])
		assert.Equal(t, float64(3), entry["index"])
	})

	t.Run("WithFieldsAccumulates", func(t *testing.T) {
		var buf bytes.Buffer
		base := NewLogger(&buf, DebugLevel)
		scoped := base.WithFields(String("role", "inviter"))

		scoped.Info("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "inviter", entry["role"])
	})

	t.Run("WithContextTagsConnectionID", func(t *testing.T) {
		var buf bytes.Buffer
		base := NewLogger(&buf, DebugLevel)
		ctx := WithConnectionID(context.Background(), "conn-42")
		scoped := base.WithContext(ctx)

		scoped.Info("hello")

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "conn-42", entry["connection_id"])
	})

	t.Run("ErrorFieldNilSafe", func(t *testing.T) {
		var buf bytes.Buffer
		log := NewLogger(&buf, DebugLevel)
		log.Error("failed", Err(nil))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Nil(t, entry["error"])
	})
}

func TestDefaultLogger(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	var buf bytes.Buffer
	SetDefault(NewLogger(&buf, DebugLevel))

	Default().Info("package level")
	assert.Contains(t, buf.String(), "package level")
}

func TestFieldConstructors(t *testing.T) {
	assert.Equal(t, Field{Key: "k", Value: "v"}, String("k", "v"))
	assert.Equal(t, Field{Key: "k", Value: 1}, Int("k", 1))
	assert.Equal(t, Field{Key: "k", Value: true}, Bool("k", true))
	assert.Equal(t, Field{Key: "k", Value: uint64(9)}, Uint64("k", 9))
}
