// Package config loads the meshd TOML configuration.
package config

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/rxanders35/mesh/pkg/flash"
	"github.com/rxanders35/mesh/pkg/ledger"
)

const (
	DefaultImage    = "flash.img"
	DefaultGamesDir = "games"
	DefaultAddr     = "127.0.0.1:8081"
	DefaultLogLevel = "info"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	LogLevel string `toml:"log_level"`
	LogJSON  bool   `toml:"log_json"`
	// Defaults are installed for the demo user at boot, as "name-vX.Y".
	Defaults []string `toml:"defaults"`

	Flash  FlashConfig  `toml:"flash"`
	Games  GamesConfig  `toml:"games"`
	Users  UsersConfig  `toml:"users"`
	Server ServerConfig `toml:"server"`
}

type FlashConfig struct {
	// Image is the flash image file standing in for the SPI-NOR part.
	Image string `toml:"image"`
	Size  int64  `toml:"size"`
}

type GamesConfig struct {
	Dir string `toml:"dir"`
	// DefaultsFile lists more default games, one "name major.minor" per line.
	DefaultsFile string `toml:"defaults_file"`
}

// UsersConfig names at most one credential source. With neither set only
// the demo user can log in.
type UsersConfig struct {
	File     string `toml:"file"`
	Database string `toml:"database"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads path, fills in unset values and validates the result. An empty
// path yields the defaults.
func Load(path string) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config")
		}
		if err := toml.Unmarshal(data, c); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Flash.Image == "" {
		c.Flash.Image = DefaultImage
	}
	if c.Flash.Size == 0 {
		c.Flash.Size = flash.DefaultSize
	}
	if c.Games.Dir == "" {
		c.Games.Dir = DefaultGamesDir
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
}

func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalid, "log_level: %v", err)
	}
	if c.Flash.Size < flash.PageSize || c.Flash.Size > 1<<32-flash.PageSize {
		return errors.Wrapf(ErrInvalid, "flash.size 0x%x out of range", c.Flash.Size)
	}
	if c.Flash.Size%flash.PageSize != 0 {
		return errors.Wrapf(ErrInvalid, "flash.size 0x%x is not a multiple of the 0x%x page", c.Flash.Size, flash.PageSize)
	}
	if c.Users.File != "" && c.Users.Database != "" {
		return errors.Wrap(ErrInvalid, "users.file and users.database are exclusive")
	}
	for _, name := range c.Defaults {
		if _, _, err := ledger.ParseFullName(name); err != nil {
			return errors.Wrapf(ErrInvalid, "defaults: %v", err)
		}
	}
	return nil
}

// SetupLogging applies log_level and log_json to the standard logrus logger.
func (c *Config) SetupLogging() error {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	logrus.SetLevel(lvl)
	if c.LogJSON {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}
