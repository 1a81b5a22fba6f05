package preview

import "time"

// Config holds the rendering options injected into a Renderer.
type Config struct {
	// Scale is the logical viewport scale relative to PDF points.
	Scale float64
	// JPEGQuality is the encode quality on the 1-100 scale.
	JPEGQuality int
	// MaxRetries is the number of automatic retries after the first attempt.
	MaxRetries int
	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
	// PixelRatio is the display's physical-to-logical pixel ratio.
	PixelRatio float64
	// MaxWidth caps the physical output width, 0 means unlimited.
	MaxWidth int
	// Timeout bounds one request, 0 means no deadline.
	Timeout time.Duration
}

// Defaults used when a Config field is left unset
const (
	DefaultScale       = 2.0
	DefaultJPEGQuality = 95
	DefaultMaxRetries  = 2
	DefaultRetryDelay  = time.Second
	DefaultPixelRatio  = 1.0
)

// DefaultConfig returns the stock configuration
func DefaultConfig() Config {
	return Config{
		Scale:       DefaultScale,
		JPEGQuality: DefaultJPEGQuality,
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
		PixelRatio:  DefaultPixelRatio,
	}
}

// normalized replaces out-of-range values with their defaults
func (c Config) normalized() Config {
	if c.Scale <= 0 {
		c.Scale = DefaultScale
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		c.JPEGQuality = DefaultJPEGQuality
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.PixelRatio <= 0 {
		c.PixelRatio = DefaultPixelRatio
	}
	if c.MaxWidth < 0 {
		c.MaxWidth = 0
	}
	return c
}

// Policy returns the retry policy described by the config
func (c Config) Policy() Policy {
	c = c.normalized()
	return Policy{MaxRetries: c.MaxRetries, Delay: c.RetryDelay}
}
