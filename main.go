package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/tphakala/automarker/cmd"
	"github.com/tphakala/automarker/internal/buildinfo"
	"github.com/tphakala/automarker/internal/conf"
	"github.com/tphakala/automarker/internal/errors"
	"github.com/tphakala/automarker/internal/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	info := buildinfo.Current()
	early, err := parseEarlyFlags(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	var settings *conf.Settings
	if early.configPath != "" {
		settings, err = conf.LoadFile(early.configPath)
	} else {
		settings, err = conf.Load()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		return 1
	}

	if early.debug && !settings.Debug {
		settings.Debug = true
		// re-run validation to apply the debug log levels
		if err := conf.ValidateSettings(settings); err != nil {
			fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
			return 1
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error initializing logging: %v\n", err)
		return 1
	}
	logger.SetGlobal(central)
	defer func() {
		_ = central.Flush()
		_ = central.Close()
	}()

	if settings.Telemetry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.DSN, settings.Telemetry.Environment, info.Release()); err != nil {
			central.Module("main").Warn("error telemetry disabled", logger.Error(err))
		} else {
			defer errors.FlushTelemetry(2 * time.Second)
		}
	}

	root := cmd.RootCommand(settings, info)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		return 1
	}
	return 0
}

// earlyFlags are the flags needed before the command tree can be built.
type earlyFlags struct {
	configPath string
	debug      bool
}

// parseEarlyFlags picks --config and --debug out of args. Settings must be
// loaded before cobra parses flags, because flag defaults come from them.
// Every other flag is left for the command tree.
func parseEarlyFlags(args []string) (earlyFlags, error) {
	var f earlyFlags

	fs := pflag.NewFlagSet("early", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.ParseErrorsAllowlist.UnknownFlags = true
	fs.StringVarP(&f.configPath, "config", "c", "", "")
	fs.BoolVarP(&f.debug, "debug", "d", false, "")

	if err := fs.Parse(args); err != nil {
		// cobra prints the help
		if errors.Is(err, pflag.ErrHelp) {
			return f, nil
		}
		return earlyFlags{}, err
	}
	return f, nil
}
