package realtime

import (
	stdlog "log"
	"os"
)

// Shared package logger so the service, registry and transport log under one
// prefix.
var log = stdlog.New(os.Stderr, "[realtime] ", stdlog.LstdFlags|stdlog.Lmsgprefix)
