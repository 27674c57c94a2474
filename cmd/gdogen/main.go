// gdogen generates the C++ setup code that binds secplus_gdo sensors to
// their garage door controller.
//
// It reads ESPHome-style device files, validates everything declared for the
// secplus_gdo integration and writes one generated source file per device
// file. Generation is all-or-nothing: a single error fails the pass and no
// file is written.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gdogen/internal/api"
	"github.com/nerrad567/gdogen/internal/build"
	"github.com/nerrad567/gdogen/internal/gdo"
	"github.com/nerrad567/gdogen/internal/infrastructure/config"
	"github.com/nerrad567/gdogen/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file, used when present in the working directory.
const defaultConfigPath = "gdogen.yaml"

func main() {
	// Cancel on Ctrl+C or SIGTERM so watch mode shuts down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// serveOptions holds the flags of the serve command.
type serveOptions struct {
	configPath string
	host       string
	port       int
	outDir     string
}

// generateOptions holds the flags of the generate command.
type generateOptions struct {
	configPath string
	outDir     string
	stdout     bool
	watch      bool
}

func rootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "gdogen",
		Short: "Generate secplus_gdo sensor bindings",
		Long: `gdogen reads device files and generates the C++ setup code that
registers secplus_gdo sensors with their garage door controller.

Each text_sensor, binary_sensor or sensor entry with platform secplus_gdo
is bound to the controller method selected by its type.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (default: $GDOGEN_CONFIG or ./gdogen.yaml)")

	cmd.AddCommand(generateCmd(&configPath))
	cmd.AddCommand(validateCmd(&configPath))
	cmd.AddCommand(typesCmd())
	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gdogen version %s (commit: %s, built: %s)\n", version, commit, date)
		},
	})

	return cmd
}

func generateCmd(configPath *string) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate PATTERN...",
		Short: "Generate setup code for device files",
		Example: `  gdogen generate devices/garage.yaml
  gdogen generate 'devices/**/*.yaml' -o firmware/src/generated
  gdogen generate devices/garage.yaml --stdout`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = *configPath
			return runGenerate(cmd.Context(), opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "o", "", "Output directory (overrides output.dir)")
	cmd.Flags().BoolVar(&opts.stdout, "stdout", false, "Print generated code instead of writing files")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Regenerate whenever a device file changes")
	cmd.MarkFlagsMutuallyExclusive("stdout", "watch")

	return cmd
}

func validateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PATTERN...",
		Short: "Check device files without writing output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), *configPath, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func serveCmd(configPath *string) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [PATTERN...]",
		Short: "Run the preview server",
		Long: `Run an HTTP server that generates code for posted device files.

When patterns are given the matching files are also watched and rebuilt,
and every build result is pushed to WebSocket clients on /api/v1/ws.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath = *configPath
			return runServe(cmd.Context(), opts, args, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "Listen address (overrides server.host)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Listen port (overrides server.port)")
	cmd.Flags().StringVarP(&opts.outDir, "out-dir", "o", "", "Output directory for watched files (overrides output.dir)")

	return cmd
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the sensor types each platform accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTypes(cmd.OutOrStdout())
		},
	}
}

// runGenerate is the generate command logic, separated from cobra for testability.
func runGenerate(ctx context.Context, opts *generateOptions, patterns []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outDir != "" {
		cfg.Output.Dir = opts.outDir
	}

	log := newLogger(cfg, stdout, stderr, opts.stdout)
	b := newBuilder(cfg, log)

	if opts.watch {
		log.Info("watching device files", "patterns", strings.Join(patterns, ","), "out_dir", cfg.Output.Dir)
		return build.NewWatcher(b, patterns, cfg.GetDebounce()).Run(ctx)
	}

	artifacts, err := b.Build(ctx, patterns)
	if err != nil {
		return err
	}

	if opts.stdout {
		for _, a := range artifacts {
			if _, err := stdout.Write(a.Content); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
		}
		return nil
	}

	written, err := b.Write(artifacts)
	if err != nil {
		return err
	}
	log.Info("generation complete", "artifacts", len(artifacts), "written", written)
	return nil
}

// runServe runs the preview server until ctx is cancelled.
func runServe(ctx context.Context, opts *serveOptions, patterns []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.outDir != "" {
		cfg.Output.Dir = opts.outDir
	}

	log := newLogger(cfg, stdout, stderr, false)
	srv, err := api.New(api.Deps{
		Config:   cfg.Server,
		Logger:   log,
		Function: cfg.Output.Function,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating preview server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting preview server: %w", err)
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Error("error closing preview server", "error", err)
		}
	}()

	if len(patterns) == 0 {
		<-ctx.Done()
		return nil
	}

	w := build.NewWatcher(newBuilder(cfg, log), patterns, cfg.GetDebounce())
	w.OnBuild = srv.PublishBuild
	return w.Run(ctx)
}

// runValidate generates in memory and reports the result without writing.
func runValidate(ctx context.Context, configPath string, patterns []string, stdout, stderr io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg, stdout, stderr, false)
	artifacts, err := newBuilder(cfg, log).Build(ctx, patterns)
	if err != nil {
		return err
	}

	units := 0
	for _, a := range artifacts {
		units += a.Units
	}
	fmt.Fprintf(stdout, "ok: %d file(s), %d unit(s)\n", len(artifacts), units)
	return nil
}

func printTypes(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PLATFORM\tTYPE\tMETHOD\tCLASS\tVALUE")
	for _, p := range gdo.Platforms() {
		for _, key := range p.Types.Keys() {
			method, _ := p.Types.Lookup(key)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Key, key, method, p.Class.Name, p.Value)
		}
	}
	return tw.Flush()
}

// newLogger honours logging.output unless generated code is going to stdout.
func newLogger(cfg *config.Config, stdout, stderr io.Writer, codeOnStdout bool) *logging.Logger {
	w := stderr
	if strings.EqualFold(cfg.Logging.Output, "stdout") && !codeOnStdout {
		w = stdout
	}
	return logging.NewWithWriter(cfg.Logging, version, w)
}

func newBuilder(cfg *config.Config, log *logging.Logger) *build.Builder {
	b := build.New(build.Options{
		OutDir:    cfg.Output.Dir,
		Extension: cfg.Output.Extension,
		Function:  cfg.Output.Function,
	})
	b.SetLogger(log)
	return b
}

func loadConfig(flagPath string) (*config.Config, error) {
	cfg, err := config.Load(getConfigPath(flagPath))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// getConfigPath returns the configuration file path.
// Priority: --config flag, GDOGEN_CONFIG, ./gdogen.yaml if it exists, none.
func getConfigPath(flagPath string) string {
	if flagPath != "" {
		return flagPath
	}
	if path := os.Getenv("GDOGEN_CONFIG"); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigPath); err == nil {
		return defaultConfigPath
	}
	return ""
}
