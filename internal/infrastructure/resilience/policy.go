package resilience

import "time"

type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryAfterMax caps a server-requested Retry-After delay.
	RetryAfterMax time.Duration

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 250 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,
		RetryAfterMax:       10 * time.Second,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// OCRPolicy is tuned for page batches that may run for minutes: two
// attempts, slow backoff, and a breaker that trips on fewer samples.
func OCRPolicy() Config {
	c := DefaultConfig()
	c.RetryMaxAttempts = 2
	c.RetryInitialBackoff = 2 * time.Second
	c.RetryMaxBackoff = 10 * time.Second
	c.RetryAfterMax = 30 * time.Second
	c.BreakerMinRequests = 5
	c.BreakerOpenTimeout = time.Minute
	return c
}

func ExtractionPolicy() Config {
	c := DefaultConfig()
	c.RetryInitialBackoff = 500 * time.Millisecond
	c.RetryMaxBackoff = 4 * time.Second
	return c
}

// MailPolicy makes one attempt per delivery; the email queue redelivers.
func MailPolicy() Config {
	return DefaultConfig().WithoutRetry()
}

// BrokerPolicy retries publishes quickly so an upload request is not held
// for long when the broker is briefly unreachable.
func BrokerPolicy() Config {
	c := DefaultConfig()
	c.RetryMaxAttempts = 4
	c.RetryInitialBackoff = 100 * time.Millisecond
	c.RetryMaxBackoff = time.Second
	c.RetryAfterMax = time.Second
	return c
}

// WithoutRetry keeps the breaker but makes a single attempt. Used where the
// job queue owns redelivery.
func (c Config) WithoutRetry() Config {
	out := c.normalize()
	out.RetryMaxAttempts = 1
	return out
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff <= 0 {
		out.RetryMaxBackoff = def.RetryMaxBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	if out.RetryAfterMax < 0 {
		out.RetryAfterMax = 0
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
