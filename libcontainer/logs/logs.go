// Package logs implements the child-side log pipe forwarder (component I):
// it drains a read-end line by line into the parent's logger.
package logs

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
)

// entry is the structured line the child writes to the log pipe: a level
// and a message. Anything that doesn't parse as JSON is forwarded verbatim
// at info level, so a child that panics before it sets up structured
// logging still surfaces its output.
type entry struct {
	Level string `json:"level"`
	Msg string `json:"msg"`
}

// ForwardLogs reads r line by line and emits each line through logrus until
// EOF or a read error, then returns: a broken fd ends the forwarder rather
// than spinning.
//
// Cancellation of the caller's goroutine is a no-op by design: the pipe
// closes naturally when the child exits, which unblocks the
// Scan call below and lets this function return on its own.
func ForwardLogs(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	for scanner.Scan() {
 line := scanner.Bytes()
 if len(line) == 0 {
 continue
 }
 var e entry
 if err := json.Unmarshal(line, &e); err != nil || e.Msg == "" {
 logrus.Info(string(line))
 continue
 }
 logWithLevel(e)
	}

	if err := scanner.Err(); err != nil {
 logrus.WithError(err).Debug("log forwarder: read error, stopping")
	}
}

func logWithLevel(e entry) {
	lvl, err := logrus.ParseLevel(e.Level)
	if err != nil {
 lvl = logrus.InfoLevel
	}
	logrus.StandardLogger().Log(lvl, e.Msg)
}
