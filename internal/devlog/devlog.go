package devlog

import (
	"fmt"
	"os"
	"time"
)

var quiet = os.Getenv("STEPWISE_QUIET") != ""

// Printf prints a timestamped debug message to stdout.
// Format: "15:04:05.000 [Tag] message\n"
func Printf(format string, args ...any) {
	if quiet {
		return
	}
	msg := fmt.Sprintf(format, args...)
	fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), msg)
}

// Tagf prints a timestamped message with a "[Tag]" prefix.
func Tagf(tag, format string, args ...any) {
	Printf("["+tag+"] "+format, args...)
}
