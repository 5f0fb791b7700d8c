package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tiktok "github.com/RavensCloud/tiktok-profiles"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

// newRootCmd creates the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tiktok",
		Short: "Fetch public TikTok profiles",
		Long: `tiktok fetches public TikTok profile pages, extracts the embedded profile
data and prints a normalized record with a data quality report.

Configuration is read from --config, ./.tiktok-profiles.yaml or
$XDG_CONFIG_HOME/tiktok-profiles/config.yaml, then TIKTOK_* environment
variables, then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "path to a YAML config file")
	pf.String("proxy", "", "proxy URL (http, https or socks5)")
	pf.Bool("render", false, "render pages in headless Chrome")
	pf.StringP("format", "f", formatJSON, "output format: json or markdown")
	pf.BoolP("verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newProfileCmd())
	cmd.AddCommand(newBatchCmd())
	return cmd
}

// Execute runs the root command, cancelling on SIGINT and SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// cmdEnv is what every subcommand needs: the merged config, a logger and
// the output format.
type cmdEnv struct {
	cfg    tiktok.Config
	logger zerolog.Logger
	format string
}

func setup(cmd *cobra.Command) (*cmdEnv, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := tiktok.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	if flags.Changed("proxy") {
		cfg.Proxy, _ = flags.GetString("proxy")
	}
	if render, _ := flags.GetBool("render"); render {
		cfg.SetTransport(tiktok.TransportRender)
	}
	if verbose, _ := flags.GetBool("verbose"); verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	format, _ := flags.GetString("format")
	if format != formatJSON && format != formatMarkdown {
		return nil, fmt.Errorf("unknown format %q: want json or markdown", format)
	}

	logger, err := tiktok.NewLogger(cmd.ErrOrStderr(), cfg.Logging)
	if err != nil {
		return nil, err
	}
	return &cmdEnv{cfg: cfg, logger: logger, format: format}, nil
}
