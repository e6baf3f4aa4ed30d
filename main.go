package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/zsprackett/quota-tray/internal/config"
	"github.com/zsprackett/quota-tray/internal/glmapi"
	"github.com/zsprackett/quota-tray/internal/quota"
	"github.com/zsprackett/quota-tray/internal/scheduler"
	"github.com/zsprackett/quota-tray/internal/ui"
)

var version = "dev"

const usageText = `usage: quota-tray [command]

  (none)          run the terminal tray UI
  serve           run headless: refresh loop, web dashboard, alerts
  check           test the configured credentials and print current usage
  passwd <user>   set the web dashboard login
  version         print the version
`

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "version", "--version":
			fmt.Println("quota-tray", version)
			return
		case "help", "-h", "--help":
			fmt.Print(usageText)
			return
		case "check":
			if err := runCheck(); err != nil {
				fatal(err)
			}
			return
		case "passwd":
			if len(os.Args) < 3 {
				fmt.Fprint(os.Stderr, usageText)
				os.Exit(2)
			}
			if err := runPasswd(os.Args[2]); err != nil {
				fatal(err)
			}
			return
		case "serve":
			if err := runServe(); err != nil {
				fatal(err)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usageText)
			os.Exit(2)
		}
	}

	if err := runTUI(); err != nil {
		fatal(err)
	}
}

// runCheck is the command-line "Test connection": it validates the stored
// config and fetches once without touching history or alerts.
func runCheck() error {
	cfg, err := config.Load(config.DefaultPath())
	if errors.Is(err, config.ErrNotFound) {
		return fmt.Errorf("no config at %s; run quota-tray and press s to configure", config.DefaultPath())
	}
	if err != nil {
		return err
	}

	logger := newConsoleLogger(cfg.LogLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	usage, rerr := scheduler.TestConnection(ctx, glmapi.New(logger), cfg)
	if rerr != nil {
		return rerr
	}
	printUsage(usage)
	return nil
}

func printUsage(u *quota.Snapshot) {
	fmt.Println(ui.TrayTitle(u, nil))
	for _, l := range u.Limits {
		line := fmt.Sprintf("  %-14s %s / %s (%.1f%%)", l.Type,
			quota.FormatTokens(l.CurrentValue), quota.FormatTokens(l.Usage), l.Percentage)
		if l.NextResetTime != nil {
			line += "  resets " + l.NextResetTime.Local().Format("Jan 2 15:04")
		}
		fmt.Println(line)
		for _, d := range l.Details {
			fmt.Printf("    %-20s %s\n", d.ModelCode, quota.FormatTokens(d.Usage))
		}
	}
}

func runPasswd(username string) error {
	fmt.Printf("New password for %s: ", username)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(pw)) == "" {
		return errors.New("password must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword(pw, bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	store := config.NewStore(config.DefaultPath())
	cfg, err := store.Update(func(c *config.Config) {
		c.Webserver.Auth.Username = username
		c.Webserver.Auth.PasswordHash = string(hash)
	})
	if err != nil {
		return err
	}
	if err := config.EnsureJWTSecret(store.Path(), &cfg); err != nil {
		return err
	}
	fmt.Printf("Password updated: %s (existing dashboard logins stay valid until they expire)\n", username)
	return nil
}

func runServe() error {
	rt, err := newRuntime(os.Stderr)
	if err != nil {
		return err
	}
	defer rt.Close()

	if rt.logFile != nil {
		fmt.Fprintf(os.Stderr, "logging to %s\n", rt.logFile.Path())
	}
	rt.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	s := <-sig
	rt.logger.Info("shutting down", "signal", s.String())
	return nil
}

func runTUI() error {
	rt, err := newRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.Close()

	app := ui.NewApp(ui.Deps{
		State:     rt.state,
		Refresher: rt.sched,
		Configs:   rt.store,
		Fetcher:   rt.client,
		History:   rt.history,
		Logger:    rt.logger,
	})
	rt.hub.Add(app)

	rt.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM)
	go func() {
		<-sig
		app.Stop()
	}()

	return app.Run()
}
