package websocket

import (
	stdlog "log"
	"os"
)

// Shared package logger for the viewer-facing connection handling.
var log = stdlog.New(os.Stderr, "[viewer-ws] ", stdlog.LstdFlags|stdlog.Lmsgprefix)
