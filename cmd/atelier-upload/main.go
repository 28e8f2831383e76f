package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
)

const version = "0.1.0"

type command struct {
	summary string
	run     func(ctx context.Context, env *environment, args []string) error
}

var commands = map[string]command{
	"login":       {"Sign in to Google Drive", runLogin},
	"logout":      {"Forget the saved Google Drive token", runLogout},
	"status":      {"Show configuration and sign-in state", runStatus},
	"upload":      {"Upload files, optionally attaching them to an order", runUpload},
	"watch":       {"Upload every file dropped into a directory", runWatch},
	"list":        {"List files in the destination folder", runList},
	"download":    {"Download a stored file", runDownload},
	"delete":      {"Delete a stored file", runDelete},
	"mkdir":       {"Create a folder", runMkdir},
	"quota":       {"Show Drive storage usage", runQuota},
	"sync":        {"Copy a Drive folder into a local directory", runSync},
	"attachments": {"List or unlink an order's attachments", runAttachments},
	"config":      {"Show which settings are present", runConfig},
}

func usage(w io.Writer) {
	fmt.Fprint(w, `atelier-upload - attach files to tailoring orders through Google Drive

Usage:
  atelier-upload [-config file] <command> [flags]

Commands:
`)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-12s %s\n", name, commands[name].summary)
	}
	fmt.Fprint(w, `
Examples:
  # Upload two files and attach them to an order
  atelier-upload upload -order ORD-1042 measurements.pdf fabric.jpg

  # Watch a drop folder with the interactive panel
  atelier-upload watch -dir ~/Atelier/Drop -order ORD-1042

`)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("atelier-upload: ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("atelier-upload", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "", "YAML configuration file (default: $ATELIER_CONFIG)")
	showVersion := global.Bool("version", false, "Show version")
	global.Usage = func() { usage(stderr) }
	if err := global.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Fprintf(stdout, "atelier-upload version %s\n", version)
		return nil
	}

	rest := global.Args()
	if len(rest) == 0 {
		usage(stderr)
		return fmt.Errorf("no command given")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		usage(stderr)
		return fmt.Errorf("unknown command %q", rest[0])
	}

	env := &environment{configPath: *configPath, stdout: stdout, stderr: stderr}
	defer env.close()
	return cmd.run(ctx, env, rest[1:])
}
