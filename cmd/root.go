package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/navpilot/internal/config"
	"github.com/xkilldash9x/navpilot/internal/observability"
	"github.com/xkilldash9x/navpilot/internal/service"
)

// Runtime carries configuration and lazily built components across command
// invocations. A one-shot run uses it once; the interactive shell shares a
// single Runtime so the in-process session store lives as long as the shell.
type Runtime struct {
	factory service.ComponentFactory

	mu         sync.Mutex
	cfg        config.Interface
	logger     *zap.Logger
	components *service.Components
}

// NewRuntime returns a Runtime that builds components with factory.
func NewRuntime(factory service.ComponentFactory) *Runtime {
	if factory == nil {
		factory = service.NewComponentFactory()
	}
	return &Runtime{factory: factory}
}

// Config returns the loaded configuration, or nil before the first command.
func (r *Runtime) Config() config.Interface {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Logger returns the runtime logger, falling back to the global one.
func (r *Runtime) Logger() *zap.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logger == nil {
		return observability.GetLogger()
	}
	return r.logger
}

// Components builds the component set on first use.
func (r *Runtime) Components(ctx context.Context) (*service.Components, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.components != nil {
		return r.components, nil
	}
	if r.cfg == nil {
		return nil, errors.New("configuration has not been loaded")
	}
	c, err := r.factory.Create(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.components = c
	return c, nil
}

// Close shuts down any components that were built.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	c := r.components
	r.components = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	return c.Shutdown(ctx)
}

// LoadConfig reads configuration without command-line overrides. It is a
// no-op once configuration has been loaded.
func (r *Runtime) LoadConfig(cfgFile string) error {
	return r.load(nil, cfgFile)
}

// load reads configuration once per Runtime. Later calls keep the first
// configuration so a shell session stays consistent.
func (r *Runtime) load(flags *pflag.FlagSet, cfgFile string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cfg != nil {
		return nil
	}

	v := viper.New()
	config.SetDefaults(v)
	if err := initializeConfig(flags, v, cfgFile); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}
	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "navpilot"})
		return fmt.Errorf("failed to load or validate config: %w", err)
	}

	observability.InitializeLogger(cfg.Logger())
	r.cfg = cfg
	r.logger = observability.GetLogger()
	r.logger.Debug("Configuration loaded", zap.String("version", Version), zap.String("session_store", cfg.Session().Store))
	return nil
}

// initializeConfig layers the config file, NAVPILOT_ environment variables
// and command-line overrides onto v.
func initializeConfig(flags *pflag.FlagSet, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("navpilot")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("NAVPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if flags == nil {
		return nil
	}
	for key, flag := range map[string]string{
		"session.store":          "store",
		"logger.level":           "log-level",
		"planner.max_iterations": "max-iterations",
	} {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewRootCommand builds the command tree bound to rt.
func NewRootCommand(rt *Runtime) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "navpilot",
		Short:         "navpilot plans browser actions toward a natural-language goal.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" || cmd.Name() == "help" {
				return nil
			}
			return rt.load(cmd.Flags(), cfgFile)
		},
	}
	root.SetVersionTemplate("navpilot {{.Version}}\n")

	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./navpilot.yaml)")
	root.PersistentFlags().String("store", "", "session store: memory, redis or postgres (overrides config)")
	root.PersistentFlags().String("log-level", "", "log level (overrides config)")
	root.PersistentFlags().Int("max-iterations", 0, "per-session iteration cap (overrides config)")

	root.AddCommand(
		newVersionCmd(),
		newSessionCmd(rt),
		newRankCmd(),
		newReplayCmd(rt),
		newGraphCmd(rt),
	)
	return root
}

// Execute runs a single command line and releases components afterwards.
func Execute(ctx context.Context, args []string) error {
	rt := NewRuntime(nil)
	defer func() {
		if err := rt.Close(context.Background()); err != nil {
			rt.Logger().Warn("Shutdown reported errors", zap.Error(err))
		}
	}()

	root := NewRootCommand(rt)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
