package main

import (
	"context"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"aerial/internal/config"
	"aerial/internal/ipc"
	"aerial/internal/library"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// withClient runs fn against the daemon API, with Ctrl-C cancelling the
// request.
func (c *commandContext) withClient(fn func(context.Context, *ipc.Client) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, ipc.New(cfg.Paths.APIBind, cfg.Paths.APIToken))
}

// withStore runs fn against the library database directly. Show and episode
// management work without a running daemon.
func (c *commandContext) withStore(fn func(context.Context, *library.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := library.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return fn(ctx, store)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
