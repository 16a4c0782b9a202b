// Package main is a command-line client for the shared grocery lists.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/docopt/docopt-go"

	"github.com/vyrodovalexey/grocery-sync/internal/config"
	"github.com/vyrodovalexey/grocery-sync/internal/grocery"
	"github.com/vyrodovalexey/grocery-sync/internal/logging"
	"github.com/vyrodovalexey/grocery-sync/internal/remote"
)

// Version is the groceryctl version.
const Version = "1.0.0"

const usage = `Grocery list control.

The store URL, order and timeouts default to the APP_* environment and the
file named by APP_CONFIG_FILE.

Usage:
    groceryctl list [--url=<url>] [--order=<order>]
    groceryctl add [--url=<url>] <name>...
    groceryctl purchase [--url=<url>] [--yes] <id>
    groceryctl unpurchase [--url=<url>] <id>
    groceryctl watch [--url=<url>] [--order=<order>]
    groceryctl -h | --help
    groceryctl --version

Options:
    -h --help        Show this screen.
    --version        Show version.
    --url=<url>      Store server URL.
    --order=<order>  newest-first or oldest-first.
    --yes            Purchase without asking for confirmation.`

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	helped := false
	parser := &docopt.Parser{
		HelpHandler: func(err error, text string) {
			helped = true
			if err != nil {
				fmt.Fprintln(stderr, text)
				return
			}
			fmt.Fprintln(stdout, text)
		},
	}

	opts, err := parser.ParseArgs(usage, args, Version)
	if err != nil {
		return exitUsage
	}
	if helped {
		return exitOK
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	logger, err := logging.New(cfg.LogLevel, logging.WithOutputs("stderr"), logging.WithConsole())
	if err != nil {
		fmt.Fprintf(stderr, "error: initializing logger: %v\n", err)
		return exitError
	}
	defer func() {
		_ = logger.Sync()
	}()

	client, err := remote.NewClient(cfg.StoreURL, logger, remote.WithReconnect(cfg.ReconnectMin, cfg.ReconnectMax))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}

	c := &cli{
		session: grocery.NewSession(client, logger, grocery.Options{
			Order:        cfg.OrderPolicy(),
			WriteTimeout: cfg.WriteTimeout,
		}),
		syncTimeout: cfg.WriteTimeout,
		stdin:       stdin,
		stdout:      stdout,
		logger:      logger,
	}

	if err := c.dispatch(ctx, opts); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	return exitOK
}

// loadConfig applies command-line overrides on top of config.Load.
func loadConfig(opts docopt.Opts) (*config.Config, error) {
	// The CLI stays quiet unless a level is asked for.
	quiet := os.Getenv(config.EnvLogLevel) == ""

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if quiet {
		cfg.LogLevel = "warn"
	}

	if u, _ := opts.String("--url"); u != "" {
		cfg.StoreURL = u
	}
	if order, _ := opts.String("--order"); order != "" {
		cfg.Order = order
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating options: %w", err)
	}
	return cfg, nil
}

func (c *cli) dispatch(ctx context.Context, opts docopt.Opts) error {
	if list, _ := opts.Bool("list"); list {
		return c.list(ctx)
	} else if add, _ := opts.Bool("add"); add {
		names, _ := opts["<name>"].([]string)
		return c.add(ctx, strings.Join(names, " "))
	} else if purchase, _ := opts.Bool("purchase"); purchase {
		id, _ := opts.String("<id>")
		yes, _ := opts.Bool("--yes")
		return c.purchase(ctx, id, yes)
	} else if unpurchase, _ := opts.Bool("unpurchase"); unpurchase {
		id, _ := opts.String("<id>")
		return c.unpurchase(ctx, id)
	} else if watch, _ := opts.Bool("watch"); watch {
		return c.watch(ctx)
	}

	c.logger.Warn("no command selected")
	return nil
}
