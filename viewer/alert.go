package viewer

import (
	"fmt"
	"time"
)

type (
	// Alert is a message for the user. Alerts with the same Name replace each
	// other in the presentation layer.
	Alert struct {
		Name     string
		Priority AlertPriority
		Message  string
		Duration time.Duration
	}

	AlertPriority int
)

const (
	Info AlertPriority = iota
	Warning
	Error
)

const defaultAlertDuration = 3 * time.Second

func (p AlertPriority) String() string {
	switch p {
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	}
	return "unknown"
}

func (a Alert) String() string {
	return fmt.Sprintf("[%s] %s", a.Priority, a.Message)
}
