// -----------------------------------------------------------------------
// Crash reports - panic capture for the command line tools
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// WriteCrashReport writes a crash report for panicVal into dir and returns
// its path. When the file cannot be written the report goes to stderr and
// the returned path is empty.
func WriteCrashReport(dir string, panicVal any, stackTrace string) string {
	var report bytes.Buffer

	fmt.Fprintf(&report, "=== TREEHERDER UITESTS CRASH REPORT ===\n")
	fmt.Fprintf(&report, "Time: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&report, "Version: %s\n\n", GetFullVersion())

	fmt.Fprintf(&report, "=== PANIC VALUE ===\n%v\n\n", panicVal)
	fmt.Fprintf(&report, "=== STACK TRACE ===\n%s\n\n", stackTrace)

	fmt.Fprintf(&report, "=== SYSTEM INFO ===\n")
	fmt.Fprintf(&report, "NumGoroutine: %d\n", runtime.NumGoroutine())
	fmt.Fprintf(&report, "GOOS/GOARCH: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Fprintf(&report, "=== END CRASH REPORT ===\n")

	if err := os.MkdirAll(dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to create %s: %v\n%s", dir, err, report.String())
		return ""
	}

	crashPath := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("2006-01-02T15-04-05")))
	if err := os.WriteFile(crashPath, report.Bytes(), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "CRASH: failed to write crash file: %v\n%s", err, report.String())
		return ""
	}

	fmt.Fprintf(os.Stderr, "\n!!! FATAL CRASH - Report saved to: %s !!!\n", crashPath)
	fmt.Fprintf(os.Stderr, "Panic: %v\n", panicVal)
	return crashPath
}

// stackTrace returns the current goroutine's stack.
func stackTrace() string {
	buf := make([]byte, 16*1024)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}

// RecoverToCrashReport recovers a panic, writes a crash report into dir
// and exits with status 2.
// Usage: defer common.RecoverToCrashReport(dir)
func RecoverToCrashReport(dir string) {
	if r := recover(); r != nil {
		WriteCrashReport(dir, r, stackTrace())
		os.Exit(2)
	}
}
