// Package config loads server and client settings from a YAML file laid over
// built-in defaults, then applies RELAY_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"

	CacheRedis  = "redis"
	CacheMemory = "memory"
)

type (
	Server struct {
		ListenAddr string `yaml:"listenAddr"`
		LogLevel   string `yaml:"logLevel"`
		Store      string `yaml:"store"`

		Mongo struct {
			URI      string `yaml:"uri"`
			Database string `yaml:"database"`
		} `yaml:"mongo"`

		Relay struct {
			MaxPayloadBytes int     `yaml:"maxPayloadBytes"`
			SendRPS         float64 `yaml:"sendRPS"`
			SendBurst       int     `yaml:"sendBurst"`
		} `yaml:"relay"`

		Connection struct {
			QueueSize     int           `yaml:"queueSize"`
			WriteTimeout  time.Duration `yaml:"writeTimeout"`
			OpTimeout     time.Duration `yaml:"opTimeout"`
			MaxFrameBytes int64         `yaml:"maxFrameBytes"`
		} `yaml:"connection"`

		Metrics bool `yaml:"metrics"`
	}

	Client struct {
		RelayURL  string `yaml:"relayURL"`
		LogLevel  string `yaml:"logLevel"`
		LogFile   string `yaml:"logFile"`
		Cache     string `yaml:"cache"`
		InboxSize int    `yaml:"inboxSize"`

		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	}
)

func DefaultServer() *Server {
	cfg := &Server{
		ListenAddr: ":9090",
		LogLevel:   "info",
		Store:      StoreMongo,
		Metrics:    true,
	}
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Mongo.Database = "relay"
	cfg.Relay.MaxPayloadBytes = 64 * 1024
	cfg.Relay.SendRPS = 20
	cfg.Relay.SendBurst = 40
	cfg.Connection.QueueSize = 256
	cfg.Connection.WriteTimeout = 10 * time.Second
	cfg.Connection.OpTimeout = 10 * time.Second
	cfg.Connection.MaxFrameBytes = 128 * 1024
	return cfg
}

func DefaultClient() *Client {
	cfg := &Client{
		RelayURL:  "ws://localhost:9090/ws",
		LogLevel:  "info",
		LogFile:   "relay-client.log",
		Cache:     CacheRedis,
		InboxSize: 64,
	}
	cfg.Redis.Addr = "localhost:6379"
	return cfg
}

func LoadServer(path string) (*Server, error) {
	cfg := DefaultServer()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func LoadClient(path string) (*Client, error) {
	cfg := DefaultClient()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

// load decodes path onto out. A missing file leaves out untouched.
func load(path string, out any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Server) Validate() error {
	switch c.Store {
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			return errors.New("mongo store needs uri and database")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.ListenAddr == "" {
		return errors.New("listen address is empty")
	}
	if c.Relay.MaxPayloadBytes < 0 || c.Connection.QueueSize < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

func (c *Client) Validate() error {
	switch c.Cache {
	case CacheRedis:
		if c.Redis.Addr == "" {
			return errors.New("redis cache needs an address")
		}
	case CacheMemory:
	default:
		return fmt.Errorf("unknown cache %q", c.Cache)
	}
	if c.RelayURL == "" {
		return errors.New("relay url is empty")
	}
	return nil
}

func (c *Server) applyEnv() {
	setString(&c.ListenAddr, "RELAY_LISTEN_ADDR")
	setString(&c.LogLevel, "RELAY_LOG_LEVEL")
	setString(&c.Store, "RELAY_STORE")
	setString(&c.Mongo.URI, "RELAY_MONGO_URI")
	setString(&c.Mongo.Database, "RELAY_MONGO_DB")
}

func (c *Client) applyEnv() {
	setString(&c.RelayURL, "RELAY_URL")
	setString(&c.LogLevel, "RELAY_LOG_LEVEL")
	setString(&c.Cache, "RELAY_CACHE")
	setString(&c.Redis.Addr, "RELAY_REDIS_ADDR")
	setString(&c.Redis.Password, "RELAY_REDIS_PASSWORD")

	if raw := strings.TrimSpace(os.Getenv("RELAY_REDIS_DB")); raw != "" {
		if db, err := strconv.Atoi(raw); err == nil {
			c.Redis.DB = db
		}
	}
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}
