package notify

import (
	"log/slog"
	"os/exec"
)

// LogSink records notifications in the daemon log instead of the
// desktop. Default when no notifier command is configured, and the
// sink tests run against.
type LogSink struct {
	Logger *slog.Logger
}

func (s *LogSink) Notify(n Notification) {
	s.Logger.Info("notify", "kind", n.Kind, "summary", n.Summary)
}

// CommandSink shells out to a desktop notifier such as notify-send.
// Delivery is fire-and-forget: the command runs in its own goroutine
// and failures are logged, never surfaced to the engine.
type CommandSink struct {
	Command string
	Logger  *slog.Logger
}

func (s *CommandSink) Notify(n Notification) {
	go func() {
		title := "nextmeeting"
		if n.Kind == KindMorningAgenda {
			title = "Today's agenda"
		}
		cmd := exec.Command(s.Command, title, n.Summary)
		if err := cmd.Run(); err != nil {
			s.Logger.Warn("notifier command failed", "command", s.Command, "error", err)
		}
	}()
}
