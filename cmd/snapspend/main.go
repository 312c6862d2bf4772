// Command snapspend is the device client: it resumes the persisted session,
// scans receipts and keeps guest receipts on the device until they are synced.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/angelmondragon/snapspend-backend/pkg/apiclient"
	"github.com/angelmondragon/snapspend-backend/pkg/legacyauth"
	"github.com/angelmondragon/snapspend-backend/pkg/localstore"
	"github.com/angelmondragon/snapspend-backend/pkg/logger"
	"github.com/angelmondragon/snapspend-backend/pkg/metrics"
	"github.com/angelmondragon/snapspend-backend/pkg/sessionstate"
)

var errUsage = errors.New("usage: snapspend [-config path] <status|guest|register|login|logout|scan|list|summary|sync> [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "snapspend:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("snapspend", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath(), "path to the client config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadClientConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logg := logger.New(logger.Options{
		ServiceName: "snapspend-cli",
		Level:       logger.ParseLevel(cfg.LogLevel),
		Output:      stderr,
	})

	if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
		return fmt.Errorf("preparing device store dir: %w", err)
	}
	store, err := localstore.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logg.Warn(logg.WithField(ctx, "error", cerr.Error()), "cli.store.close_failed")
		}
	}()

	api, err := apiclient.NewClient(cfg.APIURL, store, apiclient.WithTimeout(cfg.Timeout))
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}

	params := sessionstate.ResolverParams{
		Local:    store,
		Tokens:   api,
		Emails:   api,
		Logger:   logg,
		Observer: metrics.NewSessionMetrics(nil),
	}
	if cfg.Legacy.URL != "" {
		legacy, err := legacyauth.NewClient(cfg.Legacy.URL, cfg.Legacy.APIKey, store, legacyauth.WithTimeout(cfg.Timeout))
		if err != nil {
			return fmt.Errorf("legacy auth client: %w", err)
		}
		params.Legacy = legacy
	}

	a := &app{
		out:        stdout,
		logg:       logg,
		store:      store,
		api:        api,
		resolver:   sessionstate.NewResolver(params),
		state:      sessionstate.NewState(),
		refineWait: cfg.RefineWait,
	}
	return a.run(ctx, fs.Args())
}
