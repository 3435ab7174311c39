package logging

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name    string
		logsDir string
		want    string
	}{
		{
			name:    "basic path",
			logsDir: "vwlogs",
			want:    filepath.Join("vwlogs", "vectorwar.20260212_213836.log"),
		},
		{
			name:    "relative path with dot",
			logsDir: "./vwlogs",
			want:    filepath.Join(".", "vwlogs", "vectorwar.20260212_213836.log"),
		},
		{
			name:    "absolute path",
			logsDir: filepath.Join("/var", "log", "vectorwar"),
			want:    filepath.Join("/var", "log", "vectorwar", "vectorwar.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LogFilePath(tt.logsDir, "vectorwar", sessionStart))
		})
	}
}

func TestDumpFilePath(t *testing.T) {
	got := DumpFilePath("dumps", "sync test: 1/2", 42, "replay")
	assert.Equal(t, filepath.Join("dumps", "sync_test__1_2.frame000042.replay.log"), got)
}
