package logging

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// DumpFilePath names the text dump of one side of a desync at frame.
func DumpFilePath(dumpDir, label string, frame int32, side string) string {
	label = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		}
		return r
	}, label)
	return filepath.Join(dumpDir, fmt.Sprintf("%s.frame%06d.%s.log", label, frame, side))
}
