package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const (
	// EventBatchSize is the maximum number of readiness events pulled per wait.
	EventBatchSize = 10
	// ReadBufferSize bounds the single request read of a connection.
	ReadBufferSize = 1024
)

const (
	DispatchInline = "inline"
	DispatchAnts   = "ants"
	DispatchGopool = "gopool"
)

var (
	DefaultPath     = "config/config.json"
	DefaultDispatch = DispatchAnts
	DefaultWorkers  = 1024
)

var (
	ErrInvalidAddress  = errors.New("invalid address")
	ErrInvalidDispatch = errors.New("invalid dispatch mode")
	ErrInvalidWorkers  = errors.New("invalid worker count")
)

// ServerConfig describes a single listener. Endpoints are carried along but
// nothing routes on them.
type ServerConfig struct {
	Address   string   `json:"address"`
	Endpoints []string `json:"endpoints"`
	ReusePort bool     `json:"reuse_port,omitempty"`
}

type Config struct {
	Servers     []ServerConfig `json:"servers"`
	Dispatch    string         `json:"dispatch,omitempty"`
	Workers     int            `json:"workers,omitempty"`
	ReadTimeout Duration       `json:"read_timeout,omitempty"`
}

// Duration is a time.Duration that decodes from a string such as "5s".
type Duration time.Duration

func (d Duration) Duration() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return c, nil
}

func Parse(data []byte) (*Config, error) {
	c := new(Config)
	if err := json.Unmarshal(data, c); err != nil {
		return nil, err
	}
	if c.Dispatch == "" {
		c.Dispatch = DefaultDispatch
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	for i := range c.Servers {
		if err := ValidateAddress(c.Servers[i].Address); err != nil {
			return fmt.Errorf("servers[%d]: %w", i, err)
		}
	}
	switch c.Dispatch {
	case DispatchInline, DispatchAnts, DispatchGopool:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDispatch, c.Dispatch)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidWorkers, c.Workers)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("read_timeout must not be negative: %s", c.ReadTimeout.Duration())
	}
	return nil
}

// ValidateAddress checks that addr is host:port with a numeric port.
func ValidateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, addr, err)
	}
	if _, err = strconv.ParseUint(port, 10, 16); err != nil {
		return fmt.Errorf("%w %q: bad port %q", ErrInvalidAddress, addr, port)
	}
	return nil
}
