package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRenamesKeysAndMasksSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "fundd", "test")
	logger.Info("donation accepted", "token", "a1", "jwt_secret", "hunter2", "empty_password", "")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "donation accepted", line["message"])
	require.Equal(t, "INFO", line["severity"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, "fundd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "a1", line["token"])
	require.Equal(t, RedactedValue, line["jwt_secret"])
	require.Equal(t, "", line["empty_password"])
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestSetupWithRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fundd.log")
	logger, closer := SetupWithOptions("fundd", "test", Options{Level: "debug", File: FileConfig{Path: path}})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))) })
	logger.Debug("hello")
	require.NoError(t, closer.Close())
	require.FileExists(t, path)
}

func TestIsSensitive(t *testing.T) {
	require.True(t, IsSensitive("Authorization"))
	require.True(t, IsSensitive("audit_dsn"))
	require.False(t, IsSensitive("token"))
	require.False(t, IsSensitive("projectId"))
}
