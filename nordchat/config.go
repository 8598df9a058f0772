package nordchat

import "time"

// Config controls how the SDK connects.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 waits for server pushes indefinitely
	WriteTimeout     time.Duration
	ReadLimit        int64

	// ReconnectDelay is how long the client waits after an abnormal
	// close before starting a new session.
	ReconnectDelay time.Duration
	// CallTimeout bounds each call when positive. Zero leaves calls
	// pending until answered or the session closes.
	CallTimeout time.Duration
	// AutoMarkRead reports the newest event of the selected room as read.
	AutoMarkRead bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadLimit:        1 << 20,
		ReconnectDelay:   time.Second,
		AutoMarkRead:     true,
	}
}

// Validate reports configuration the client cannot run with.
func (c Config) Validate() error {
	if c.URL == "" {
		return NewError(ErrorInvalidConfig, "empty URL")
	}
	if c.ReconnectDelay < 0 || c.CallTimeout < 0 {
		return NewError(ErrorInvalidConfig, "negative duration")
	}
	return nil
}
