package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional fcp configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	Theme    ThemeConfig    `toml:"theme"`
}

// DefaultsConfig holds persistent flag defaults. Command line flags always
// win over values set here.
type DefaultsConfig struct {
	Reflink           *string `toml:"reflink"`
	Sparse            *string `toml:"sparse"`
	Workers           *int    `toml:"workers"`
	Verify            *bool   `toml:"verify"`
	Archive           *bool   `toml:"archive"`
	BWLimit           *string `toml:"bwlimit"`
	AttrFailurePolicy *string `toml:"attr_failure_policy"`
}

// ThemeConfig holds optional color overrides for the summary output.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Muted  *string `toml:"muted"`
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "fcp", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// Apply copies file defaults into opts. set reports whether the named flag
// was given on the command line, in which case the file value is ignored.
func (d DefaultsConfig) Apply(opts *Options, set func(name string) bool) error {
	if d.Reflink != nil && !set("reflink") {
		m, err := ParseMode(*d.Reflink)
		if err != nil {
			return err
		}
		opts.Reflink = m
	}
	if d.Sparse != nil && !set("sparse") {
		m, err := ParseMode(*d.Sparse)
		if err != nil {
			return err
		}
		opts.Sparse = m
	}
	if d.Workers != nil && !set("workers") {
		opts.Workers = *d.Workers
	}
	if d.Verify != nil && !set("verify") {
		opts.Verify = *d.Verify
	}
	if d.BWLimit != nil && !set("bwlimit") {
		n, err := ParseSize(*d.BWLimit)
		if err != nil {
			return err
		}
		opts.BWLimit = n
	}
	if d.AttrFailurePolicy != nil && !set("attr-failure-policy") {
		p, err := ParseAttrFailurePolicy(*d.AttrFailurePolicy)
		if err != nil {
			return err
		}
		opts.AttrPolicy = p
	}
	return nil
}
