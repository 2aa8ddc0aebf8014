// Package config loads daemon configuration from flags, environment
// variables, and an optional config file, layered with
// github.com/spf13/viper the way mcpproxy-go wires its own
// cobra+viper configuration.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "GMENUPROXY"

// Config is the daemon's resolved configuration, after flags,
// environment variables, and an optional config file have all been
// layered over the defaults below.
type Config struct {
	LogLevel         string        `mapstructure:"log_level"`
	StartIndex       int           `mapstructure:"start_index"`
	DeferWindow      time.Duration `mapstructure:"defer_window"`
	RegistrarService string        `mapstructure:"registrar_service"`
	RegistrarPath    string        `mapstructure:"registrar_path"`
	MetricsAddr      string        `mapstructure:"metrics_addr"`
	ServiceName      string        `mapstructure:"service_name"`
	ConfigFile       string        `mapstructure:"-"`
}

// Defaults returns the configuration used when no flag, environment
// variable, or config file overrides a field.
func Defaults() Config {
	return Config{
		LogLevel:         "info",
		StartIndex:       100,
		DeferWindow:      20 * time.Millisecond,
		RegistrarService: "com.canonical.AppMenu.Registrar",
		RegistrarPath:    "/com/canonical/AppMenu/Registrar",
		MetricsAddr:      "",
		ServiceName:      "org.gmenuproxy.Daemon",
	}
}

// BindFlags registers the daemon's configuration flags on cmd and
// returns a function that, once cmd has parsed its arguments, resolves
// the layered configuration (flags > environment > config file >
// defaults).
func BindFlags(cmd *cobra.Command) func() (Config, error) {
	defaults := Defaults()
	flags := cmd.Flags()

	flags.String("config", "", "path to a YAML configuration file")
	flags.String("log-level", defaults.LogLevel, "log verbosity (debug, info, warn, error)")
	flags.Int("start-index", defaults.StartIndex, "virtual-root start index for non-menubar subscriptions")
	flags.Duration("defer", defaults.DeferWindow, "virtual-root synthesis defer window")
	flags.String("metrics-addr", defaults.MetricsAddr, "address to serve Prometheus metrics on, empty disables")
	flags.String("registrar-service", defaults.RegistrarService, "override the AppMenu registrar's bus name")
	flags.String("registrar-path", defaults.RegistrarPath, "override the AppMenu registrar's object path")

	return func() (Config, error) {
		return resolve(flags)
	}
}

type flagGetter interface {
	GetString(name string) (string, error)
	GetInt(name string) (int, error)
	GetDuration(name string) (time.Duration, error)
	Changed(name string) bool
}

func resolve(flags flagGetter) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	defaults := Defaults()
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("start_index", defaults.StartIndex)
	v.SetDefault("defer_window", defaults.DeferWindow)
	v.SetDefault("registrar_service", defaults.RegistrarService)
	v.SetDefault("registrar_path", defaults.RegistrarPath)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)
	v.SetDefault("service_name", defaults.ServiceName)

	configFile, err := flags.GetString("config")
	if err != nil {
		return Config{}, fmt.Errorf("read --config flag: %w", err)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %v: %w", configFile, err)
		}
	}

	bindOverride := func(key, flagName string) error {
		if !flags.Changed(flagName) {
			return nil
		}
		switch flagName {
		case "log-level", "metrics-addr", "registrar-service", "registrar-path":
			s, err := flags.GetString(flagName)
			if err != nil {
				return err
			}
			v.Set(key, s)
		case "start-index":
			i, err := flags.GetInt(flagName)
			if err != nil {
				return err
			}
			v.Set(key, i)
		case "defer":
			d, err := flags.GetDuration(flagName)
			if err != nil {
				return err
			}
			v.Set(key, d)
		}
		return nil
	}

	overrides := map[string]string{
		"log_level":         "log-level",
		"start_index":       "start-index",
		"defer_window":      "defer",
		"metrics_addr":      "metrics-addr",
		"registrar_service": "registrar-service",
		"registrar_path":    "registrar-path",
	}
	for key, flagName := range overrides {
		if err := bindOverride(key, flagName); err != nil {
			return Config{}, fmt.Errorf("read --%v flag: %w", flagName, err)
		}
	}

	cfg := defaults
	cfg.ConfigFile = configFile
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal configuration: %w", err)
	}
	return cfg, nil
}
