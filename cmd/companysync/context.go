package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/yungbote/companysync-backend/internal/app"
	"github.com/yungbote/companysync-backend/internal/observability"
	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

type appFactory func(log *logger.Logger, cfg app.Config) (*app.App, error)

type commandContext struct {
	v          *viper.Viper
	configFlag *string
	newApp     appFactory

	configOnce sync.Once
	config     app.Config
	configErr  error

	log *logger.Logger
}

func newCommandContext(v *viper.Viper, configFlag *string) *commandContext {
	return &commandContext{
		v:          v,
		configFlag: configFlag,
		newApp:     app.New,
	}
}

func (c *commandContext) ensureConfig() (app.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := app.LoadConfig(c.v, path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() (*logger.Logger, error) {
	if c.log != nil {
		return c.log, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.log = log
	return log, nil
}

// withApp builds the app, starts metrics when an address is configured and closes
// everything once fn returns.
func (c *commandContext) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	log, err := c.logger()
	if err != nil {
		return err
	}
	if cfg.MetricsAddr != "" {
		observability.Init(log, true).StartServer(ctx, log, cfg.MetricsAddr)
		log.Info("Serving metrics", "addr", cfg.MetricsAddr)
	}
	a, err := c.newApp(log, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	a.Start()
	return fn(a)
}
