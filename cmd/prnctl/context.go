package main

import (
	"os"
	"strings"
	"sync"

	"github.com/kirillkom/prn-reconciler/internal/config"
	"github.com/kirillkom/prn-reconciler/internal/observability/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

// ensureConfig loads configuration once and routes logs to stderr, leaving
// stdout to command output.
func (c *commandContext) ensureConfig() (config.Config, error) {
	c.configOnce.Do(func() {
		if c.configFlag != nil {
			if path := strings.TrimSpace(*c.configFlag); path != "" {
				if err := os.Setenv("CONFIG_FILE", path); err != nil {
					c.configErr = err
					return
				}
			}
		}
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			cfg.LogLevel = *c.logLevelFlag
		}
		logging.InstallWriter(os.Stderr, "prnctl", cfg.LogLevel)
		c.config = cfg
	})
	return c.config, c.configErr
}
