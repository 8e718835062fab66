// Command threadmail sends conversation notifications and imports the
// mailed replies into their threads.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/pflag"

	"github.com/nhle/threadmail/internal/account"
	"github.com/nhle/threadmail/internal/credential"
	"github.com/nhle/threadmail/internal/files"
	"github.com/nhle/threadmail/internal/i18n"
	"github.com/nhle/threadmail/internal/logging"
	"github.com/nhle/threadmail/internal/mailservice"
	"github.com/nhle/threadmail/internal/model"
	"github.com/nhle/threadmail/internal/store"
	mailsync "github.com/nhle/threadmail/internal/sync"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		logging.Log.WithError(err).Error("threadmail stopped")
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("threadmail", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", model.DefaultConfigPath(), "path to the YAML config file")
	once := flags.Bool("once", false, "run a single reconciliation cycle and exit")
	flags.String("log-level", "info", "log level (overrides log.level)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	_, v, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	cfg, err := model.DecodeConfig(v)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	if err := logging.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return err
	}

	if cfg.Database.Driver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0o755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}
	st, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	fm, err := files.NewManager(afero.NewOsFs(), cfg.Files.Dir)
	if err != nil {
		return err
	}

	tr, err := i18n.New(cfg.I18n.Language, cfg.I18n.Messages)
	if err != nil {
		return err
	}

	var resolverOpts []account.Option
	creds, err := credential.Open(filepath.Join(filepath.Dir(cfg.Files.Dir), "keyring"))
	if err != nil {
		logging.Log.WithError(err).Warn("keyring unavailable; mail passwords must be set in the config")
	} else {
		resolverOpts = append(resolverOpts, account.WithSecrets(creds.Get))
	}

	svc := mailservice.New(st, account.NewResolver(v, resolverOpts...), fm,
		mailservice.WithWorkers(cfg.Sender.Workers, cfg.Sender.QueueSize),
		mailservice.WithTranslator(tr),
		mailservice.WithSelections(i18n.Selections(cfg.Selections)),
		mailservice.WithActor(cfg.Audit.Actor),
	)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		n, err := svc.Fetch(ctx)
		if err != nil {
			return err
		}
		logging.Log.WithField("count", n).Info("imported replies")
		return nil
	}

	poller := mailsync.NewPoller(svc.Fetch, cfg.Fetch.Interval)
	poller.Start()
	logging.Log.WithField("interval", cfg.Fetch.Interval.String()).Info("threadmail started")

	// SIGUSR1 asks for an immediate cycle.
	trigger := make(chan os.Signal, 1)
	signal.Notify(trigger, syscall.SIGUSR1)
	defer signal.Stop(trigger)

	for {
		select {
		case <-ctx.Done():
			logging.Log.Info("shutting down")
			poller.Stop()
			return nil
		case <-trigger:
			poller.Trigger()
		}
	}
}
