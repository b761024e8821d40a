package conversation

import (
	"context"
	"fmt"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

var _ domain.Notifier = (*CLINotifier)(nil)

const (
	ansiReset  = "\033[0m"
	ansiNotice = "\033[1;36m"
	ansiAlert  = "\033[1;31m"
)

// PrintFunc prints one formatted line. display.UI.Printf fits.
type PrintFunc func(format string, a ...interface{})

// CLINotifier prints reminders to the terminal in colour.
type CLINotifier struct {
	log *logger.Logger
	out PrintFunc
}

// NewCLINotifier returns a notifier that writes through out, or to
// stdout when out is nil.
func NewCLINotifier(log *logger.Logger, out PrintFunc) *CLINotifier {
	if out == nil {
		out = func(format string, a ...interface{}) { fmt.Printf(format+"\n", a...) }
	}
	return &CLINotifier{log: log, out: out}
}

// Notify prints a reminder, e.g. that a deferred product is due.
func (n *CLINotifier) Notify(_ context.Context, message string) error {
	return n.emit(ansiNotice, "reminder", message)
}

// NotifyUrgent prints an alert.
func (n *CLINotifier) NotifyUrgent(_ context.Context, message string) error {
	return n.emit(ansiAlert, "alert", message)
}

func (n *CLINotifier) emit(colour, kind, message string) error {
	if message == "" {
		return nil
	}
	n.log.Debug("%s: %s", kind, message)
	n.out("%s%s%s", colour, message, ansiReset)
	return nil
}
