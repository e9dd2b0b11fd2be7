package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
)

type Config struct {
	LogLevel   string  `yaml:"log-level" env-default:"info"`
	HTTPPort   string  `yaml:"http-port" env-default:"9090"`
	SocketPort string  `yaml:"socket-port" env-default:"8080"`
	Storage    Storage `yaml:"storage"`
	Redis      Redis   `yaml:"redis"`
}

type Storage struct {
	// Backend selects the room registry: "memory" (default) or "redis".
	Backend string `yaml:"backend" env-default:"memory"`

	// RoomTTL is how long an idle room survives before the reaper (or
	// the redis key expiration) evicts it.
	RoomTTL      time.Duration `yaml:"room-ttl" env-default:"30m"`
	ReapInterval time.Duration `yaml:"reap-interval" env-default:"5m"`
}

type Redis struct {
	Host string `yaml:"host" env-default:"localhost"`
	Port string `yaml:"port" env-default:"6379"`
}

// MustLoad - load all configurations in config.yml file.
func MustLoad(path string) *Config {
	config := &Config{}

	if err := cleanenv.ReadConfig(path, config); err != nil {
		panic(fmt.Errorf("unable to load config file: %w", err))
	}

	return config
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
