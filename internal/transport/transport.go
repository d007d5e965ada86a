package transport

// Transport is a generic sink for trainer events. Implementations must be
// safe for concurrent use and must not block the caller.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message is the envelope every event travels in. Type discriminates the
// payload for clients: "hit", "calibration" or "state".
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	// MessageHit wraps an analysis.ClassificationResult.
	MessageHit = "hit"
	// MessageCalibration wraps a calibration.Progress update.
	MessageCalibration = "calibration"
	// MessageState wraps a calibration.State snapshot.
	MessageState = "state"
)

// LoggingTransport discards events. It stands in for the WebSocket server
// when no clients are expected, keeping the publisher wiring uniform.
type LoggingTransport struct{}

func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{}
}

func (lt *LoggingTransport) Send(data any) error { return nil }

func (lt *LoggingTransport) Close() error { return nil }

var _ Transport = (*LoggingTransport)(nil)
