package link

import (
	"log/slog"
	"time"

	"i4.energy/across/blelink/at"
)

const (
	defaultBufferSize  = 64
	defaultAttempts    = 5
	defaultRetryDelay  = 100 * time.Millisecond
	defaultSettleDelay = time.Second
)

// Config holds the settings of a Driver. Build one with NewConfigBuilder.
type Config struct {
	dialer      Dialer
	peerAddress string
	bufferSize  int
	attempts    int
	retryDelay  time.Duration
	settleDelay time.Duration
	logger      *slog.Logger
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	if c.peerAddress == "" {
		return ErrNoPeerAddress
	}
	if c.bufferSize != 0 && c.bufferSize < at.MaxTokenLen {
		return ErrBufferTooSmall
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.bufferSize == 0 {
		c.bufferSize = defaultBufferSize
	}
	if c.attempts <= 0 {
		c.attempts = defaultAttempts
	}
	if c.retryDelay < 0 {
		c.retryDelay = defaultRetryDelay
	}
	if c.settleDelay < 0 {
		c.settleDelay = defaultSettleDelay
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder preloaded with the module defaults:
// a 64 byte receive buffer, 5 attempts per command with 100ms linear
// backoff, and a one second settle delay before connecting.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: Config{
		bufferSize:  defaultBufferSize,
		attempts:    defaultAttempts,
		retryDelay:  defaultRetryDelay,
		settleDelay: defaultSettleDelay,
	}}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithPeerAddress sets the address passed to the connect command, e.g.
// "D03972A5F1C2".
func (b *ConfigBuilder) WithPeerAddress(addr string) *ConfigBuilder {
	b.config.peerAddress = addr
	return b
}

func (b *ConfigBuilder) WithBufferSize(n int) *ConfigBuilder {
	b.config.bufferSize = n
	return b
}

func (b *ConfigBuilder) WithAttempts(n int) *ConfigBuilder {
	b.config.attempts = n
	return b
}

// WithRetryDelay sets the backoff step. Attempt i waits i times this delay.
func (b *ConfigBuilder) WithRetryDelay(d time.Duration) *ConfigBuilder {
	b.config.retryDelay = d
	return b
}

// WithSettleDelay sets the pause between the setup script and the connect
// command.
func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.settleDelay = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// Build validates the configuration and returns it.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
