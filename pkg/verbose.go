package dirhashtree

import (
	"fmt"
	"os"
	"runtime"
	"strings"
)

// debugFlagSet holds the subsystem flags enabled for debug output.
// Recognised flags: walk, diff, store.
type debugFlagSet map[string]struct{}

func parseDebugFlags(flagsStr string) debugFlagSet {
	set := make(debugFlagSet)
	for _, flag := range strings.Split(flagsStr, ",") {
		if flag = strings.ToLower(strings.TrimSpace(flag)); flag != "" {
			set[flag] = struct{}{}
		}
	}
	return set
}

func (s debugFlagSet) enabled(flag string) bool {
	_, ok := s[strings.ToLower(flag)]
	return ok
}

var (
	globalVerboseLevel int
	globalDebugFlags   debugFlagSet
)

// SetVerboseLevel sets the global verbose level (0=quiet, 1=basic, 2=detailed, 3=trace)
func SetVerboseLevel(level int) {
	globalVerboseLevel = level
}

// GetVerboseLevel returns the current verbose level
func GetVerboseLevel() int {
	return globalVerboseLevel
}

// SetDebugFlags enables debug output for a comma-separated list of subsystems
func SetDebugFlags(flagsStr string) {
	globalDebugFlags = parseDebugFlags(flagsStr)
}

// IsDebugEnabled returns true if debug output is enabled for the subsystem
func IsDebugEnabled(flag string) bool {
	return globalDebugFlags.enabled(flag)
}

// VerboseLog logs a message to stderr when the global level is at or above
// the given level
func VerboseLog(level int, format string, args ...interface{}) {
	if globalVerboseLevel < level {
		return
	}
	fmt.Fprintf(os.Stderr, "[VERBOSE-%d] ", level)
	fmt.Fprintf(os.Stderr, format, args...)
	if !strings.HasSuffix(format, "\n") {
		fmt.Fprintf(os.Stderr, "\n")
	}
}

// VerboseEnter logs function entry at level 3+ and returns a defer function
// for exit logging
func VerboseEnter() func() {
	if globalVerboseLevel < 3 {
		return func() {}
	}

	pc, _, _, ok := runtime.Caller(1)
	if !ok {
		return func() {}
	}
	funcName := runtime.FuncForPC(pc).Name()
	if idx := strings.LastIndex(funcName, "."); idx != -1 {
		funcName = funcName[idx+1:]
	}

	fmt.Fprintf(os.Stderr, "[TRACE] Entering function: %s\n", funcName)
	return func() {
		fmt.Fprintf(os.Stderr, "[TRACE] Exiting function: %s\n", funcName)
	}
}
