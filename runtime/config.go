package runtime

import "github.com/pkg/errors"

type Config struct {
	Partition int32
	// PollIntervalMs is how often expired timeouts are fired
	PollIntervalMs int
	// AppendRetryInitialMs is the first wait before retrying a failed append
	AppendRetryInitialMs int
	// AppendRetryMaxElapsedMs bounds the time spent retrying one append
	AppendRetryMaxElapsedMs int
	AppendMaxRetries        int
	EventQueueSize          int
}

func DefaultConfig() *Config {
	return &Config{
		PollIntervalMs:          100,
		AppendRetryInitialMs:    100,
		AppendRetryMaxElapsedMs: 5000,
		AppendMaxRetries:        5,
		EventQueueSize:          1024,
	}
}

func (c *Config) Validate() error {
	if c.Partition < 0 {
		return errors.Errorf("partition must not be negative, got %d", c.Partition)
	}
	if c.PollIntervalMs <= 0 {
		return errors.Errorf("PollIntervalMs must be positive, got %d", c.PollIntervalMs)
	}
	if c.AppendRetryInitialMs <= 0 || c.AppendRetryMaxElapsedMs <= 0 {
		return errors.New("append retry intervals must be positive")
	}
	if c.AppendMaxRetries < 0 {
		return errors.Errorf("AppendMaxRetries must not be negative, got %d", c.AppendMaxRetries)
	}
	if c.EventQueueSize <= 0 {
		return errors.Errorf("EventQueueSize must be positive, got %d", c.EventQueueSize)
	}
	return nil
}
