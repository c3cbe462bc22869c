package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/happyhackingspace/seqinfer"
	"github.com/spf13/cobra"
)

// CLI encapsulates the command-line interface with its dependencies.
type CLI struct {
	version     string
	verbose     bool
	silent      bool
	initialized bool
	modelPath   string
	configPath  string
	finder      string
	rootCmd     *cobra.Command
}

// New creates a new CLI instance with the given version string.
func New(version string) *CLI {
	c := &CLI{version: version}
	c.setupCommands()
	return c
}

// setupCommands initializes all CLI commands and their configurations.
func (c *CLI) setupCommands() {
	c.rootCmd = &cobra.Command{
		Use:          "seqinfer",
		Short:        "Sequence labeling with exact, beam, k-best and sampling search",
		Version:      c.version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			c.initApp()
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	flags := c.rootCmd.PersistentFlags()
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "Enable verbose/debug output")
	flags.BoolVarP(&c.silent, "silent", "s", false, "Suppress all logging")
	flags.StringVar(&c.modelPath, "model", "", "Path to model file (default: auto-detect)")
	flags.StringVar(&c.configPath, "config", "", "Path to YAML search config")
	flags.StringVar(&c.finder, "finder", "", "Search to use: exact, beam, kbest, sampler, gibbs or anneal")

	defaultHelp := c.rootCmd.HelpFunc()
	c.rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		c.initApp()
		defaultHelp(cmd, args)
	})

	c.rootCmd.AddCommand(c.newDecodeCommand())
	c.rootCmd.AddCommand(c.newKBestCommand())
	c.rootCmd.AddCommand(c.newLatticeCommand())
	c.rootCmd.AddCommand(c.newCompareCommand())
	c.rootCmd.AddCommand(c.newUpCommand())
}

// Run executes the CLI and returns any error. An interrupt cancels any
// search in progress.
func (c *CLI) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return c.rootCmd.ExecuteContext(ctx)
}

// initApp initializes logging.
func (c *CLI) initApp() {
	if c.initialized {
		return
	}
	c.initialized = true

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	if c.silent {
		level = slog.Level(100)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// config loads --config over the defaults and applies --finder.
func (c *CLI) config() (*seqinfer.Config, error) {
	cfg := seqinfer.DefaultConfig()
	if c.configPath != "" {
		var err error
		if cfg, err = seqinfer.LoadConfig(c.configPath); err != nil {
			return nil, err
		}
		slog.Debug("Config loaded", "path", c.configPath, "finder", cfg.Finder)
	}
	if c.finder != "" {
		cfg.Finder = c.finder
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// decoder loads the model named by --model, or auto-detects one.
func (c *CLI) decoder() (*seqinfer.Decoder, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	if c.modelPath != "" {
		slog.Debug("Loading custom model", "path", c.modelPath)
		return seqinfer.Load(c.modelPath, cfg)
	}
	d, err := seqinfer.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w (pass --model or place model.json in %s)", err, seqinfer.ModelDir())
	}
	return d, nil
}
