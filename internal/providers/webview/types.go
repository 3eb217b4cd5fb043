package webview

import (
	"errors"
	"time"
)

var (
	ErrClosed  = errors.New("webview: renderer closed")
	ErrTimeout = errors.New("webview: execution timeout exceeded")
)

// Config defines renderer configuration
type Config struct {
	// Origin is the URL the content claims to be loaded from; it is
	// reported with every posted message.
	Origin        string
	Timeout       time.Duration // Per-evaluation timeout
	EnableConsole bool          // Capture console.log/warn/error/info
	MaxCallStack  int
}

// LogEntry represents console output
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// Message is one postMessage call from content.
type Message struct {
	Data   string
	Origin string
}

// DefaultConfig returns a headless renderer configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       5 * time.Second,
		EnableConsole: true,
		MaxCallStack:  1024,
	}
}
