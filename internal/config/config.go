package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type RedisConfig struct {
	Addr         string `json:"addr"`
	Password     string `json:"password"`
	DB           int    `json:"db"`
	PoolSize     int    `json:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns"`
}

type ServerConfig struct {
	SocketPath        string      `json:"socket_path"`
	RestartBackoffSec int         `json:"restart_backoff_sec"`
	DrainTimeoutSec   int         `json:"drain_timeout_sec"`
	BlockingSlots     int         `json:"blocking_slots"`
	Debug             bool        `json:"debug"`
	Redis             RedisConfig `json:"redis"`
}

func Load(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
