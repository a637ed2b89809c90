package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSearchers(); err != nil {
		return err
	}
	if err := c.validateRetrievers(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LibraryDir) == "" {
		return errors.New("paths.library_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind %q is not host:port: %w", c.Paths.APIBind, err)
	}
	return nil
}

func (c *Config) validateSearchers() error {
	if _, err := parseHours(c.Searchers.Hours); err != nil {
		return fmt.Errorf("searchers.hours: %w", err)
	}
	for _, name := range c.Searchers.Enabled {
		if name == "easynews" && (c.Easynews.Username == "" || c.Easynews.Password == "") {
			return errors.New("searchers.enabled includes easynews but easynews.username/password are not set")
		}
		if name == "torznab" && strings.TrimSpace(c.Torznab.URL) == "" {
			return errors.New("searchers.enabled includes torznab but torznab.url is not set")
		}
	}
	return nil
}

func (c *Config) validateRetrievers() error {
	if c.Retrievers.Parallel < 1 {
		return errors.New("retrievers.parallel must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}
