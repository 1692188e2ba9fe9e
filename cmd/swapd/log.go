package main

import (
	"fmt"
	"io"
	"os"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/xmrswap/swapd/common"
	"github.com/xmrswap/swapd/swap/alice"
	"github.com/xmrswap/swapd/swapdb"
)

// Grounded on daemon/log.go's backend-plus-subsystem-map shape, with
// build.NewSubLogger (unavailable here; that package belongs to the
// lnd module tree this repo doesn't vendor) replaced by calling
// backendLog.Logger directly, which is all NewSubLogger added on top
// of for a daemon with no per-subsystem log-level persistence needs.
var (
	logWriter  = &logWriterPipe{}
	backendLog = btclog.NewBackend(logWriter)
	logRotator *rotator.Rotator

	swpdLog = backendLog.Logger("SWPD")
	alceLog = backendLog.Logger("ALCE")
	swdbLog = backendLog.Logger("SWDB")
)

var subsystemLoggers = map[string]btclog.Logger{
	"SWPD": swpdLog,
	"ALCE": alceLog,
	"SWDB": swdbLog,
}

func init() {
	common.UseLogger(swpdLog)
	alice.UseLogger(alceLog)
	swapdb.UseLogger(swdbLog)
}

// logWriterPipe fans writes out to both stdout and the log rotator, the
// same two-sink behavior build.LogWriter gives lnd.
type logWriterPipe struct {
	rotatorPipe io.Writer
}

func (w *logWriterPipe) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if w.rotatorPipe != nil {
		w.rotatorPipe.Write(p)
	}
	return len(p), nil
}

// initLogRotator starts writing subsystem logs to logFile, rolling over
// once it passes maxFileSize KB and keeping at most maxFiles old files.
func initLogRotator(logFile string, maxFileSize, maxFiles int) error {
	r, err := rotator.New(logFile, int64(maxFileSize*1024), false, maxFiles)
	if err != nil {
		return fmt.Errorf("create log rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logWriter.rotatorPipe = pw
	logRotator = r
	return nil
}

func setLogLevels(levelStr string) {
	level, _ := btclog.LevelFromString(levelStr)
	for _, logger := range subsystemLoggers {
		logger.SetLevel(level)
	}
}
