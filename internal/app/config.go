package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	PatchPath string // .hcl patch and template files

	LogFormat   string
	LogLevel    string
	ControlPort int // 0 disables the control server
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.PatchPath == "" {
		return nil, errors.New("PatchPath is a required configuration field and cannot be empty")
	}

	return &cfg, nil
}
