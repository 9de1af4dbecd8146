package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	StateDir   string `split_words:"true" default:"/var/lib/netlab"`
	SubnetBase string `split_words:"true" default:"fd9d:f7b0:23af"`
	PrefixBits int    `split_words:"true" default:"64"`
	NamePrefix string `split_words:"true" default:"netlab"`
	Shell      string `default:""`
	LogLevel   string `split_words:"true" default:"info"`
}

func Load(prefix string) (*Config, error) {
	prefix = strings.ToUpper(prefix)
	prefix = strings.ReplaceAll(prefix, "-", "_")
	prefix = strings.ReplaceAll(prefix, " ", "_")
	var config Config
	if err := envconfig.Process(prefix, &config); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if config.Shell == "" {
		config.Shell = os.Getenv("SHELL")
		if config.Shell == "" {
			config.Shell = "/bin/sh"
		}
	}
	return &config, nil
}
