package notify

import (
	"time"

	"go.uber.org/zap"

	"github.com/linguachat/lingua/internal/bus"
)

// Level classifies a user-facing notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Notice is the payload delivered to the UI notification surface.
type Notice struct {
	Level   Level
	Message string
}

// Notifier is the sink core components use to surface user-visible
// conditions. The core never renders UI itself.
type Notifier interface {
	Notify(level Level, message string)
}

// BusNotifier publishes notices on the event bus for UI consumers and
// mirrors them to the log.
type BusNotifier struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// New creates a bus-backed notifier.
func New(b *bus.Bus, logger *zap.Logger) *BusNotifier {
	return &BusNotifier{bus: b, logger: logger}
}

// Notify publishes a ui.notice event.
func (n *BusNotifier) Notify(level Level, message string) {
	switch level {
	case LevelError:
		n.logger.Error(message)
	case LevelWarn:
		n.logger.Warn(message)
	default:
		n.logger.Info(message)
	}
	n.bus.Publish(bus.Event{
		Kind:      bus.KindNotice,
		Timestamp: time.Now(),
		Payload:   Notice{Level: level, Message: message},
	})
}
