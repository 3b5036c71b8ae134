package main

import (
	"flag"
	"fmt"
)

// CLIConfig holds the parsed command-line flags for a flowruntime process.
type CLIConfig struct {
	ListenAddr  string
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	ShowVersion bool
	ShowHelp    bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}
	flag.StringVar(&cfg.ListenAddr, "listen", "", "control surface listen address (overrides the config file's listen.address, default :8080)")
	flag.StringVar(&cfg.ConfigPath, "config", "", "path to a JSON config file (optional)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.StringVar(&cfg.LogFormat, "log-format", "json", "log format: json, text")
	flag.BoolVar(&cfg.ShowVersion, "version", false, "print version and exit")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "print usage and exit")
	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", cfg.LogFormat)
	}
	return nil
}

func printHelp() {
	fmt.Println("flowruntime: a live-reconfigurable dataflow pipeline runtime")
	flag.PrintDefaults()
}
