package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"murmur/internal/api"
	"murmur/internal/catalog"
	"murmur/internal/config"
	"murmur/internal/daemonctl"
	"murmur/internal/engine"
	"murmur/internal/pipeline"
	"murmur/internal/queue"
	"murmur/internal/queueaccess"
)

type commandContext struct {
	configFlag string

	// engineOptions is handed to engine.Build for in-process renders.
	engineOptions engine.Options

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// openSession connects to the daemon API, falling back to the queue
// database when no daemon answers.
func (c *commandContext) openSession(ctx context.Context) (queueaccess.Session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return queueaccess.Session{}, err
	}
	return queueaccess.OpenWithFallback(ctx,
		func(ctx context.Context) (*api.Client, error) {
			client, _, err := daemonctl.Dial(ctx, cfg)
			return client, err
		},
		func() (*queue.Store, error) { return queue.Open(cfg) },
		&catalogValidator{cfg: cfg},
	)
}

func (c *commandContext) withSession(cmd *cobra.Command, fn func(queueaccess.Session) error) error {
	session, err := c.openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer session.Close()
	return fn(session)
}

// catalogValidator loads the catalog on first use so read-only commands do
// not depend on it.
type catalogValidator struct {
	cfg *config.Config

	once  sync.Once
	inner queueaccess.Validator
	err   error
}

func (v *catalogValidator) Validate(req pipeline.SynthesisRequest) (pipeline.SynthesisRequest, error) {
	v.once.Do(func() {
		cat, err := catalog.Load(v.cfg.Paths.CatalogFile)
		if err != nil {
			v.err = fmt.Errorf("load catalog: %w", err)
			return
		}
		v.inner = queueaccess.CatalogValidator{
			Lookup: cat,
			Limits: pipeline.Limits{
				MaxAffirmations:     v.cfg.Pipeline.MaxAffirmations,
				MaxAffirmationChars: v.cfg.Pipeline.MaxAffirmationChars,
			},
		}
	})
	if v.err != nil {
		return pipeline.SynthesisRequest{}, v.err
	}
	return v.inner.Validate(req)
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
