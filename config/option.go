package config

import (
	"os"
	"strconv"
)

type Option struct {
	LogLevel   string
	ConfigPath string
	Port       int
}

func NewOptions() *Option {
	return &Option{
		LogLevel:   LogLevelDebug,
		ConfigPath: "./bin/config.json",
		Port:       DefaultPort,
	}
}

// FromEnv overrides options with LOG_LEVEL, CONFIG_PATH and PORT when set.
func (o *Option) FromEnv() *Option {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		o.LogLevel = v
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		o.ConfigPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			o.Port = port
		}
	}
	return o
}
