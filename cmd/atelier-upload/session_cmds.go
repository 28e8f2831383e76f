package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/commons-systems/atelier/internal/config"
)

func newFlagSet(env *environment, name, usageLine string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(env.stderr)
	fs.Usage = func() {
		fmt.Fprintf(env.stderr, "Usage:\n  atelier-upload %s %s\n\nFlags:\n", name, usageLine)
		fs.PrintDefaults()
	}
	return fs
}

func runLogin(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "login", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	session, err := env.authSession(ctx)
	if err != nil {
		return err
	}
	if err := session.LoginAndWait(ctx); err != nil {
		return fmt.Errorf("failed to sign in: %w", err)
	}
	color.New(color.FgGreen).Fprintln(env.stdout, "✓ Signed in to Google Drive")
	return nil
}

func runLogout(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "logout", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	session, err := env.authSession(ctx)
	if err != nil {
		return err
	}
	if err := session.Logout(ctx); err != nil {
		return fmt.Errorf("failed to sign out: %w", err)
	}
	fmt.Fprintln(env.stdout, "Signed out")
	return nil
}

func runStatus(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "status", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := env.config()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		color.New(color.FgRed).Fprintf(env.stdout, "✗ %v\n", err)
		return nil
	}
	session, err := env.authSession(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "Destination folder: %s\n", cfg.UploadFolderID())
	fmt.Fprintf(env.stdout, "Environment:        %s\n", cfg.Environment)
	if session.IsAuthenticated() {
		color.New(color.FgGreen).Fprintln(env.stdout, "✓ Signed in")
	} else {
		color.New(color.FgYellow, color.Bold).Fprintln(env.stdout, "⚠ Not signed in; run `atelier-upload login`")
	}
	return nil
}

func runConfig(ctx context.Context, env *environment, args []string) error {
	fs := newFlagSet(env, "config", "")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := env.config()
	if err != nil {
		return err
	}
	printDiagnostics(env.stdout, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	return nil
}

func printDiagnostics(w io.Writer, cfg config.Config) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, d := range cfg.Diagnostics() {
		switch {
		case d.Set:
			green.Fprintf(w, "  ✓ %-24s", d.Name)
			fmt.Fprintf(w, " %s\n", d.Value)
		case d.Required:
			red.Fprintf(w, "  ✗ %-24s required\n", d.Name)
		default:
			fmt.Fprintf(w, "  - %-24s not set\n", d.Name)
		}
	}
}
