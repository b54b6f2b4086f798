// Package config loads the control core's configuration via viper,
// following the nested-struct-with-mapstructure-tags layout used
// throughout the trading-system teacher this module was adapted from.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the control core process.
type Config struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	GPIO struct {
		Host              string        `mapstructure:"host"`
		Port              int           `mapstructure:"port"`
		HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
		WatchdogInterval  time.Duration `mapstructure:"watchdog_interval"`
		CounterPin        int           `mapstructure:"counter_pin"`
		PonderalPin       int           `mapstructure:"ponderal_pin"`
		EtiquetaPin       int           `mapstructure:"etiqueta_pin"`
		ReconnectMinDelay time.Duration `mapstructure:"reconnect_min_delay"`
		ReconnectMaxDelay time.Duration `mapstructure:"reconnect_max_delay"`
	} `mapstructure:"gpio"`

	AutoPause struct {
		OpenDebounce         time.Duration `mapstructure:"open_debounce"`
		CloseDebounce        time.Duration `mapstructure:"close_debounce"`
		Cooldown             time.Duration `mapstructure:"cooldown"`
		ReconciliationPeriod time.Duration `mapstructure:"reconciliation_period"`
		WorkerPoolSize       int           `mapstructure:"worker_pool_size"`
	} `mapstructure:"auto_pause"`

	Timezone string `mapstructure:"timezone"`

	Monitoring struct {
		PrometheusPort int    `mapstructure:"prometheus_port"`
		LogLevel       string `mapstructure:"log_level"`
	} `mapstructure:"monitoring"`
}

var (
	cfg  *Config
	once sync.Once
)

// Default returns the production default configuration (spec §4.9,
// §6): T_OPEN=20s, T_CLOSE=5s, T_COOLDOWN=30s, 60s GPIO heartbeat
// timeout, watchdog at 15s, reconciliation at 5s.
func Default() *Config {
	c := &Config{}
	c.GPIO.HeartbeatTimeout = 60 * time.Second
	c.GPIO.WatchdogInterval = 15 * time.Second
	c.GPIO.ReconnectMinDelay = 500 * time.Millisecond
	c.GPIO.ReconnectMaxDelay = 30 * time.Second
	c.AutoPause.OpenDebounce = 20 * time.Second
	c.AutoPause.CloseDebounce = 5 * time.Second
	c.AutoPause.Cooldown = 30 * time.Second
	c.AutoPause.ReconciliationPeriod = 5 * time.Second
	c.AutoPause.WorkerPoolSize = 2
	c.Timezone = "Europe/Madrid"
	c.Database.SSLMode = "disable"
	c.Monitoring.LogLevel = "info"
	return c
}

// Load reads configuration from path (if non-empty) and the CREMER_
// environment prefix, falling back to Default() for unset fields.
func Load(path string) (*Config, error) {
	var loadErr error
	once.Do(func() {
		v := viper.New()
		v.SetEnvPrefix("CREMER")
		v.AutomaticEnv()

		def := Default()
		v.SetDefault("gpio.heartbeat_timeout", def.GPIO.HeartbeatTimeout)
		v.SetDefault("gpio.watchdog_interval", def.GPIO.WatchdogInterval)
		v.SetDefault("gpio.reconnect_min_delay", def.GPIO.ReconnectMinDelay)
		v.SetDefault("gpio.reconnect_max_delay", def.GPIO.ReconnectMaxDelay)
		v.SetDefault("auto_pause.open_debounce", def.AutoPause.OpenDebounce)
		v.SetDefault("auto_pause.close_debounce", def.AutoPause.CloseDebounce)
		v.SetDefault("auto_pause.cooldown", def.AutoPause.Cooldown)
		v.SetDefault("auto_pause.reconciliation_period", def.AutoPause.ReconciliationPeriod)
		v.SetDefault("auto_pause.worker_pool_size", def.AutoPause.WorkerPoolSize)
		v.SetDefault("timezone", def.Timezone)
		v.SetDefault("database.sslmode", def.Database.SSLMode)
		v.SetDefault("monitoring.log_level", def.Monitoring.LogLevel)

		if path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				loadErr = fmt.Errorf("reading config file %s: %w", path, err)
				return
			}
		}

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			loadErr = fmt.Errorf("unmarshalling config: %w", err)
			return
		}
	})
	if loadErr != nil {
		return nil, loadErr
	}
	return cfg, nil
}

// DSN builds the Postgres connection string gorm expects.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password,
		c.Database.Name, c.Database.SSLMode,
	)
}

// GPIOAddress returns the host:port of the GPIO field-I/O endpoint.
func (c *Config) GPIOAddress() string {
	return fmt.Sprintf("%s:%d", c.GPIO.Host, c.GPIO.Port)
}
