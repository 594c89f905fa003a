package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"quire/internal/api"
	"quire/internal/config"
)

type rootFlags struct {
	config string
	api    string
	token  string
	json   bool
}

type commandContext struct {
	flags *rootFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.flags != nil && c.flags.json
}

// client builds an API client from flags, falling back to the config.
func (c *commandContext) client() (*api.Client, error) {
	bind := strings.TrimSpace(c.flags.api)
	token := strings.TrimSpace(c.flags.token)
	if bind == "" || token == "" {
		cfg, err := c.ensureConfig()
		if err != nil {
			return nil, err
		}
		if bind == "" {
			bind = cfg.Paths.APIBind
		}
		if token == "" {
			token = cfg.API.Token
		}
	}
	return api.NewClient(bind, token)
}

func wrapDialError(err error, endpoint string) error {
	var rpcErr *api.Error
	switch {
	case errors.As(err, &rpcErr):
		return err
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `quire daemon`", endpoint)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
