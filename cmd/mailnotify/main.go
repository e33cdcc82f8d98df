// Command mailnotify watches one or more Gmail accounts over IMAP and
// reports unread mail in a terminal interface.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mail-notifier/internal/alert"
	"github.com/nhle/mail-notifier/internal/app"
	"github.com/nhle/mail-notifier/internal/credential"
	"github.com/nhle/mail-notifier/internal/logging"
	"github.com/nhle/mail-notifier/internal/model"
	"github.com/nhle/mail-notifier/internal/session"
	"github.com/nhle/mail-notifier/internal/session/imapstore"
	"github.com/nhle/mail-notifier/internal/store"
	appsync "github.com/nhle/mail-notifier/internal/sync"
)

// mailRetention is how long the mail log keeps entries.
const mailRetention = 30 * 24 * time.Hour

type flags struct {
	configPath string
	headless   bool
	setup      bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mailnotify:", err)
		os.Exit(1)
	}
}

func run() error {
	v := viper.New()
	f, err := parseFlags(v, os.Args[1:])
	if err != nil {
		return err
	}

	cfg, err := model.LoadConfigWith(v, f.configPath)
	if err != nil {
		return err
	}

	log, closeLog, err := openLog(cfg, f.headless)
	if err != nil {
		return err
	}
	defer closeLog()

	creds, err := credential.Open()
	if err != nil {
		log.Warn().Err(err).Msg("keyring unavailable, passwords must be set in the config file")
		creds = nil
	} else {
		missing, err := creds.ResolvePasswords(cfg.Accounts)
		if err != nil {
			log.Warn().Err(err).Msg("reading passwords from keyring")
		}
		for _, u := range missing {
			log.Warn().Str("account", u).Msg("no password stored, login will fail")
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("closing store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := st.PruneMail(ctx, time.Now().Add(-mailRetention)); err != nil {
		log.Warn().Err(err).Msg("pruning mail log")
	} else if n > 0 {
		log.Debug().Int64("entries", n).Msg("pruned mail log")
	}

	sessions := session.NewManager(imapstore.NewDialer(log), cfg.Server, cfg.Proxy, log)
	poller := appsync.New(sessions, st, alert.LogSinks(log), log, appsync.Options{
		SupervisorInterval: cfg.Supervisor.Interval,
	})

	for i := range cfg.Accounts {
		a, err := poller.AddAccount(ctx, cfg.Accounts[i])
		if err != nil {
			return err
		}
		cfg.Accounts[i].ID = a.ID()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return poller.Run(gctx)
	})

	if f.headless {
		log.Info().Int("accounts", len(cfg.Accounts)).Msg("running headless")
		return g.Wait()
	}

	uiCtx, cancelUI := context.WithCancel(gctx)
	bridge := app.NewBridge()
	unsubscribe := poller.Subscribe(bridge)

	root := app.New(app.Options{
		Poller:     poller,
		Bridge:     bridge,
		Config:     cfg,
		ConfigPath: f.configPath,
		Keyring:    creds,
		History:    st,
		Log:        log,
		StartSetup: f.setup || len(cfg.Accounts) == 0,
	})

	g.Go(func() error {
		defer stop()
		defer unsubscribe()
		_, err := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(uiCtx)).Run()
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})

	err = g.Wait()
	cancelUI()
	return err
}

// parseFlags parses the command line and binds overrides into v.
func parseFlags(v *viper.Viper, args []string) (flags, error) {
	var f flags
	fs := pflag.NewFlagSet("mailnotify", pflag.ContinueOnError)
	fs.StringVarP(&f.configPath, "config", "c", model.DefaultConfigPath(), "path to the configuration file")
	fs.BoolVar(&f.headless, "headless", false, "check mail without the terminal interface")
	fs.BoolVar(&f.setup, "setup", false, "open the account form on start")
	fs.String("log-level", "", "log level (debug, info, warn, error)")

	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if err := v.BindPFlag("log.level", fs.Lookup("log-level")); err != nil {
		return f, fmt.Errorf("binding flags: %w", err)
	}
	return f, nil
}

// openLog creates the logger. The terminal interface owns the screen, so
// outside headless mode logs go to a file next to the state database.
func openLog(cfg *model.AppConfig, headless bool) (zerolog.Logger, func(), error) {
	if headless {
		log, err := logging.NewStderr(cfg.Log)
		return log, func() {}, err
	}

	path := filepath.Join(filepath.Dir(cfg.Store.Path), "mailnotify.log")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("opening log file: %w", err)
	}

	logCfg := cfg.Log
	logCfg.Pretty = false
	log, err := logging.New(file, logCfg)
	if err != nil {
		_ = file.Close()
		return zerolog.Nop(), nil, err
	}
	return log, func() { _ = file.Close() }, nil
}
