package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"

	"github.com/EloyM96/avisor/internal/app"
	"github.com/EloyM96/avisor/internal/common"
	"github.com/EloyM96/avisor/internal/ingest"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	showVersion = flag.Bool("version", false, "Print version information")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: avisor [flags] <command> [args]

Commands:
  run <playbook>       Execute a playbook (use -dry-run to preview)
  ingest <workbook>    Load a workbook into the domain tables (-mapping required)
  worker               Run the background delivery workers
  schedule             Run the configured cron schedules

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("avisor version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	// Startup order: config (defaults -> file -> env), then logger, then banner
	configPath := *configFile
	if configPath == "" {
		if _, err := os.Stat("avisor.toml"); err == nil {
			configPath = "avisor.toml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Str("path", configPath).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())
	logger.Info().
		Str("version", common.GetVersion()).
		Str("environment", config.Environment).
		Msg("avisor starting")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "run":
		err = runPlaybook(application, args)
	case "ingest":
		err = runIngest(application, args)
	case "worker":
		err = runWorker(application, logger)
	case "schedule":
		err = runSchedule(application, logger)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Error().Err(err).Str("command", command).Msg("Command failed")
		os.Exit(1)
	}
}

func runPlaybook(application *app.App, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Render and audit without delivering")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("run expects exactly one playbook name")
	}

	report, err := application.Runner.Run(context.Background(), fs.Arg(0), *dryRun)
	if err != nil {
		return err
	}
	return printJSON(report)
}

func runIngest(application *app.App, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	mappingPath := fs.String("mapping", "", "Column mapping YAML file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("ingest expects exactly one workbook path")
	}
	if *mappingPath == "" {
		return fmt.Errorf("ingest requires -mapping")
	}

	mapping, err := ingest.LoadMapping(*mappingPath)
	if err != nil {
		return err
	}

	result, err := application.Ingest().IngestWorkbook(context.Background(), fs.Arg(0), mapping)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runWorker(application *app.App, logger arbor.ILogger) error {
	if application.Queue == nil {
		return fmt.Errorf("queue is disabled; enable [queue] in the configuration to run workers")
	}

	pool := application.StartWorkers()
	defer pool.Stop()

	waitForShutdown(logger)
	return nil
}

func runSchedule(application *app.App, logger arbor.ILogger) error {
	if len(application.Config.Schedules) == 0 {
		return fmt.Errorf("no schedules configured")
	}

	for _, entry := range application.Config.Schedules {
		if err := application.Scheduler.Register(entry); err != nil {
			return err
		}
	}
	if err := application.Scheduler.Start(); err != nil {
		return err
	}
	defer application.Scheduler.Stop()

	// Workers drain queued deliveries produced by scheduled runs
	if application.Queue != nil {
		pool := application.StartWorkers()
		defer pool.Stop()
	}

	waitForShutdown(logger)
	return nil
}

func waitForShutdown(logger arbor.ILogger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("Shutting down")
}

func printJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
