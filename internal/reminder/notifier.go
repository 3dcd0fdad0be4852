package reminder

import "go.uber.org/zap"

// Notification is one reminder ready for delivery
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Notifier delivers a reminder to the user. Implementations decide the
// channel (log line, websocket push, desktop notification).
type Notifier interface {
	Notify(n Notification) error
}

// LogNotifier writes reminders to the application log. It is the
// fallback channel and the one used in tests.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(n Notification) error {
	l.logger.Info("Reminder",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// MultiNotifier fans one notification out to several channels. Delivery
// succeeds if at least one channel accepts it.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(n Notification) error {
	var lastErr error
	delivered := false
	for _, notifier := range m {
		if err := notifier.Notify(n); err != nil {
			lastErr = err
			continue
		}
		delivered = true
	}
	if delivered {
		return nil
	}
	return lastErr
}
