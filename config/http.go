package config

import "time"

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`

	// CompressionEnabled gzips compressible responses for clients that accept it.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"true"`
	CompressionLevel   int  `env:"HTTP_COMPRESSION_LEVEL"   envDefault:"6"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
	if h.MaxBodyBytes < 1024 {
		h.MaxBodyBytes = 1024
	}
	if h.CompressionLevel < 1 || h.CompressionLevel > 9 {
		h.CompressionLevel = 6
	}
}
