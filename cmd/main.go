package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	allure "github.com/ethereum-optimism/infra/op-allure"
	"github.com/ethereum-optimism/infra/op-allure/exitcodes"
	"github.com/ethereum-optimism/infra/op-allure/flags"
	"github.com/ethereum-optimism/infra/op-allure/reporting"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := newApp()
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if reporting.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				// Test failures and unspecified errors
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-allure"
	app.Usage = "Allure results tooling"
	app.Description = "op-allure summarises and cleans Allure results directories"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Commands = []*cli.Command{
		{
			Name:   "summary",
			Usage:  "Print a summary of the results directory; exits 1 if any test failed or broke",
			Action: summary,
		},
		{
			Name:   "clean",
			Usage:  "Remove all results from the results directory",
			Action: clean,
		},
	}
	return app
}

func setupLogger(ctx *cli.Context) log.Logger {
	logCfg := oplog.ReadCLIConfig(ctx)
	logger := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(logger.Handler())
	return logger
}

// readConfig merges the optional config file with the command line flags,
// which take precedence when set
func readConfig(ctx *cli.Context, logger log.Logger) (allure.Config, error) {
	cfg := allure.DefaultConfig()
	if path := ctx.String(flags.ConfigFile.Name); path != "" {
		loaded, err := allure.LoadConfigFile(path)
		if err != nil {
			return allure.Config{}, err
		}
		cfg = loaded
	}
	if ctx.IsSet(flags.ResultsDir.Name) || cfg.Directory == "" {
		cfg.Directory = ctx.String(flags.ResultsDir.Name)
	}
	if ctx.IsSet(flags.Title.Name) {
		cfg.Title = ctx.String(flags.Title.Name)
	}
	cfg.Log = logger
	return cfg, nil
}

func summary(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	cfg, err := readConfig(ctx, logger)
	if err != nil {
		return reporting.NewRuntimeError(fmt.Errorf("failed to read config: %w", err))
	}

	results, err := reporting.LoadResults(ctx.Context, logger, cfg.Directory)
	if err != nil {
		return reporting.NewRuntimeError(err)
	}
	reporting.FormatSummary(ctx.App.Writer, results, cfg.Title)

	if results.Failed() {
		return reporting.NewTestFailureError(results)
	}
	return nil
}

func clean(ctx *cli.Context) error {
	logger := setupLogger(ctx)
	cfg, err := readConfig(ctx, logger)
	if err != nil {
		return reporting.NewRuntimeError(fmt.Errorf("failed to read config: %w", err))
	}

	lifecycle, err := allure.New(cfg)
	if err != nil {
		return reporting.NewRuntimeError(err)
	}
	if err := lifecycle.CleanupResultDirectory(ctx.Context); err != nil {
		return reporting.NewRuntimeError(fmt.Errorf("failed to clean %s: %w", cfg.Directory, err))
	}
	return nil
}
