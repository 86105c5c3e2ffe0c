package terminal

import (
	"github.com/Bitsy-Chuck/pomodex/internal/log"
)

// LogAuditLogger records every inbound terminal message as a
// structured log line. ttyd output is never audited: it is ANSI-heavy
// and carries no meaningful content.
type LogAuditLogger struct{}

func NewLogAuditLogger() *LogAuditLogger {
	return &LogAuditLogger{}
}

func (LogAuditLogger) LogInput(projectID, userID string, content []byte) {
	log.WithProject(projectID, userID).Info().
		Str("event", "terminal_input").
		Str("content", string(content)).
		Msg("terminal input")
}
