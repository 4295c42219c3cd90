// Package logging defines the named [log/slog] levels used throughout pymodgraph, including the
// intermediate "verbose" and "notice" levels that sit between slog's standard levels.
package logging

import (
	"fmt"
	"log/slog"
	"strings"
)

const (
	LevelTrace   = slog.LevelDebug - 4 // -8
	LevelDebug   = slog.LevelDebug     // -4
	LevelVerbose = slog.LevelDebug + 2 // -2
	LevelInfo    = slog.LevelInfo      // 0
	LevelNotice  = slog.LevelInfo + 2  // 2
	LevelWarn    = slog.LevelWarn      // 4
	LevelError   = slog.LevelError     // 8
	LevelFatal   = slog.LevelError + 4 // 12
)

// namedLevels is ordered from least to most severe.
var namedLevels = []struct {
	name string
	lvl  slog.Level
}{
	{"trace", LevelTrace},
	{"debug", LevelDebug},
	{"verbose", LevelVerbose},
	{"info", LevelInfo},
	{"notice", LevelNotice},
	{"warn", LevelWarn},
	{"error", LevelError},
	{"fatal", LevelFatal},
}

// BumpLevel returns lvl bumped to the next more severe (or, if lower is true, less severe) named
// level.  A level already at or beyond the end of the named range is moved one step further in the
// same direction so that repeated bumps remain monotonic.
func BumpLevel(lvl slog.Level, lower bool) slog.Level {
	if lower {
		for i := len(namedLevels) - 1; i >= 0; i-- {
			if namedLevels[i].lvl < lvl {
				return namedLevels[i].lvl
			}
		}
		return lvl - 4
	}
	for _, nl := range namedLevels {
		if nl.lvl > lvl {
			return nl.lvl
		}
	}
	return lvl + 4
}

// StringToLevel converts a (case-insensitive) level name to its [slog.Level] value.
func StringToLevel(arg string) (slog.Level, error) {
	arg = strings.ToLower(arg)
	names := make([]string, 0, len(namedLevels))
	for _, nl := range namedLevels {
		if nl.name == arg {
			return nl.lvl, nil
		}
		names = append(names, nl.name)
	}
	return 0, fmt.Errorf("invalid log level; expected one of: %v", strings.Join(names, ", "))
}
