/******************************************************************************
 *
 *  Description :
 *    Leveled loggers shared by all server packages.
 *
 *****************************************************************************/
package logs

import (
	"io"
	"log"
	"os"
)

var (
	// Info is the logger for informational messages.
	Info *log.Logger
	// Warn is the logger for recoverable problems.
	Warn *log.Logger
	// Err is the logger for unrecoverable errors.
	Err *log.Logger
)

func init() {
	Init(log.LstdFlags | log.Lshortfile)
}

// Init reinitializes the loggers with the given flags.
func Init(flags int) {
	Info = log.New(os.Stdout, "I", flags)
	Warn = log.New(os.Stdout, "W", flags)
	Err = log.New(os.Stderr, "E", flags)
}

// AccessWriter is the sink for HTTP access log lines.
func AccessWriter() io.Writer {
	return os.Stdout
}
