package flags

import (
	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"

	allure "github.com/ethereum-optimism/infra/op-allure"
)

const EnvVarPrefix = "OP_ALLURE"

var (
	ResultsDir = &cli.StringFlag{
		Name:    "results-dir",
		Value:   allure.DefaultResultsDirectory,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RESULTS_DIR"),
		Usage:   "Path to the Allure results directory",
	}
	ConfigFile = &cli.StringFlag{
		Name:    "config",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONFIG"),
		Usage:   "Path to an allureConfig.json, .yaml or .toml file supplying the directory and title",
	}
	Title = &cli.StringFlag{
		Name:    "title",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "TITLE"),
		Usage:   "Title of the rendered summary",
	}
)

var optionalFlags = []cli.Flag{
	ResultsDir,
	ConfigFile,
	Title,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)

	Flags = optionalFlags
}
