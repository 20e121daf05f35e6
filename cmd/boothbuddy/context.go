package main

import (
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/boothbuddy/boothbuddy/internal/config"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.EnvConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads configuration once. The --config flag takes the
// place of BOOTH_CONFIG.
func (c *commandContext) ensureConfig() (*config.EnvConfig, error) {
	c.configOnce.Do(func() {
		if c.configFlag != nil {
			if path := strings.TrimSpace(*c.configFlag); path != "" {
				os.Setenv(config.EnvConfigFile, path)
			}
		}
		c.config, c.configErr = config.New()
	})
	return c.config, c.configErr
}

// localAPIURL is the base URL of the server configured on this machine.
func localAPIURL(cfg config.Config) string {
	host := cfg.Host()
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = config.DefaultHost
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Port()))
}

// apiURL prefers an explicit flag, then the kiosk's configured API, then
// the local server.
func apiURL(flag string, cfg config.Config) string {
	if flag != "" {
		return strings.TrimRight(flag, "/")
	}
	if base := cfg.Kiosk().APIBaseURL; base != "" {
		return strings.TrimRight(base, "/")
	}
	return localAPIURL(cfg)
}
