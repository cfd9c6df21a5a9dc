package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	cfgPkg "github.com/xhad/sectionrag/pkg/config"
)

const usage = `Usage: sectionrag [-config path] <command> [flags] [args]

Commands:
  init                          create the store schema
  ingest [-by-heading] [-url u] <path>...
                                load markdown, text and pdf files and ingest them
  search [-limit n] <query>     list the closest sections
  ask [-limit n] [question]     answer from the closest sections (interactive without a question)
  delete <file_path>            remove every section of a file
  serve [-addr addr]            run the HTTP and websocket server
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	global := flag.NewFlagSet("sectionrag", flag.ContinueOnError)
	configPath := global.String("config", "", "Path to config file")
	logLevel := global.String("log-level", "", "Override the configured log level")
	global.Usage = func() { fmt.Fprint(global.Output(), usage) }
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return fmt.Errorf("no command given")
	}

	cfg, err := cfgPkg.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Yellow("config: %s", e.Error())
		}
		return fmt.Errorf("invalid configuration (%d problems)", len(errs))
	}

	command, rest := global.Arg(0), global.Args()[1:]
	switch command {
	case "init", "ingest", "search", "ask", "delete", "serve":
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	a, err := newApp(ctx, cfg, command == "ask" || command == "serve")
	if err != nil {
		return err
	}
	defer a.close()

	out := color.Output
	switch command {
	case "init":
		return a.initStore(ctx, out)
	case "ingest":
		return a.ingest(ctx, rest, out)
	case "search":
		return a.search(ctx, rest, out)
	case "ask":
		return a.ask(ctx, rest, os.Stdin, out)
	case "delete":
		return a.delete(ctx, rest, out)
	default:
		return a.serve(ctx, rest)
	}
}
