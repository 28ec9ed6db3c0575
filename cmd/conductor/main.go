// Command conductor runs a goal-driven agent from the terminal.
//
// Usage:
//
//	conductor run "summarize the weather in Oslo" --config config.yaml
//	conductor run "what time is it in Tokyo?" --provider scripted
//	conductor validate --config config.yaml
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/conductor/pkg/config"
	"github.com/kadirpekel/conductor/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Run an agent toward a goal."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:""`
	LogFormat string `help:"Log format (text, json)." default:""`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("conductor %s\n", version)
	return nil
}

// ValidateCmd checks a configuration file without running anything.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("validate requires --config")
	}
	if _, err := config.Load(cli.Config); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

// loadConfig resolves the effective configuration: the file when given,
// defaults otherwise, with CLI logging flags winning either way.
func loadConfig(cli *CLI) (*config.Config, error) {
	var cfg *config.Config
	if cli.Config != "" {
		loaded, err := config.Load(cli.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.LogFormat != "" {
		cfg.Logging.Format = cli.LogFormat
	}
	return cfg, nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("conductor"),
		kong.Description("conductor - stateful goal-driven agent engine"),
		kong.UsageOnError(),
	)

	cfg, err := loadConfig(&cli)
	ctx.FatalIfErrorf(err)

	_, err = logger.Setup(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	ctx.FatalIfErrorf(err)

	err = ctx.Run(&cli, cfg)
	ctx.FatalIfErrorf(err)
	os.Exit(exitCode)
}

// exitCode lets RunCmd report agent failure without an os.Exit deep in the
// command, which would skip deferred cleanup.
var exitCode int
