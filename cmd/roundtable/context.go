package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"roundtable/internal/config"
	"roundtable/internal/daemonctl"
	"roundtable/internal/maintenance"
	"roundtable/internal/pipeline"
	"roundtable/internal/session"
	"roundtable/internal/store"
	"roundtable/internal/workflow"
)

// daemonDialTimeout bounds how long a command waits for the daemon API
// before falling back to the session database.
const daemonDialTimeout = 750 * time.Millisecond

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if level := c.logLevel(); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) logLevel() string {
	if c.logLevelFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.logLevelFlag)
}

func (c *commandContext) withStore(fn func(*store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}

// daemonClient returns a client when the daemon API answers, or nil.
func (c *commandContext) daemonClient(ctx context.Context) *daemonctl.Client {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil
	}
	client, err := daemonctl.NewClient(cfg)
	if err != nil {
		return nil
	}
	statusCtx, cancel := context.WithTimeout(ctx, daemonDialTimeout)
	defer cancel()
	if _, err := client.Status(statusCtx); err != nil {
		return nil
	}
	return client
}

// requireDaemon returns a client or a hint to start the daemon.
func (c *commandContext) requireDaemon(ctx context.Context) (*daemonctl.Client, error) {
	client := c.daemonClient(ctx)
	if client == nil {
		return nil, errors.New("daemon is not reachable; start it with `roundtable start`")
	}
	return client, nil
}

// withBackend runs fn against the daemon when reachable and the local
// database otherwise.
func (c *commandContext) withBackend(ctx context.Context, fn func(sessionBackend) error) error {
	if client := c.daemonClient(ctx); client != nil {
		return fn(&daemonBackend{client: client})
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	return c.withStore(func(st *store.Store) error {
		maint := maintenance.New(st, pipeline.NewTranscriber(cfg, nil),
			maintenance.WithActiveCheck(heartbeatOwned(st, cfg)),
		)
		return fn(&localBackend{store: st, maintenance: maint, cfg: cfg})
	})
}

// heartbeatOwned treats a session as running elsewhere while another
// process keeps its heartbeat fresh.
func heartbeatOwned(st *store.Store, cfg *config.Config) func(id string) bool {
	return func(id string) bool {
		sess, err := st.Get(context.Background(), id)
		if err != nil {
			return false
		}
		return sess.State.IsActive() && !staleHeartbeat(cfg, sess)
	}
}

func staleHeartbeat(cfg *config.Config, sess *session.Session) bool {
	monitor := workflow.NewHeartbeatMonitor(nil, nil, cfg.HeartbeatInterval())
	return monitor.Stale(sess, time.Now())
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
