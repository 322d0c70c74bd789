/*
Package cmd is the command line utility
*/
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	homedir "github.com/mitchellh/go-homedir"
	slogmulti "github.com/samber/slog-multi"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	cfgFile string
	// Verbose uses lots more verbosity for output and logging and such
	Verbose bool
	trace   bool
	logger  *slog.Logger
)

// NewRootCmd represents the base command when called without any subcommands
func NewRootCmd(lo io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "blumbike",
		Short:   "Live telemetry dashboard server for the blum.bike",
		Version: version,
		Long: paragraph(fmt.Sprintf(`The %s 🚲 server receives telemetry pushed by the bike's Photon controller, keeps the session history in Redis, and serves the dashboard's polling and resistance-control API.`,
			makeGradientText(lipgloss.NewStyle(), "blumbike"),
		)),
		PersistentPreRun: globalPersistentPreRun,
		SilenceUsage:     true, // Usage too heavy to print out every time this thing fails
		SilenceErrors:    true, // We have a wrapper using our logger to do this
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.blumbike.yaml)")
	cmd.PersistentFlags().BoolVarP(&Verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(&trace, "trace", "t", false, "Enable trace messages in output")
	cmd.SetVersionTemplate("{{ .Version }}\n")

	cmd.AddCommand(
		NewServeCmd(),
		NewConfigCmd(),
		NewVersionCmd(),
	)
	cmd.SetOut(lo)

	return cmd
}

// NewRootCmdWithVersion creates the root command carrying build version info
func NewRootCmdWithVersion(lo io.Writer, v string) *cobra.Command {
	version = v
	return NewRootCmd(lo)
}

func init() {
	cobra.OnInitialize(initConfig)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigName(".blumbike")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func newLoggerOpts() log.Options {
	logOpts := log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "blumbike 🚲 ",
		Level:           log.InfoLevel,
		ReportCaller:    trace,
	}
	if Verbose {
		logOpts.Level = log.DebugLevel
	}

	return logOpts
}

func newJSONLoggerOpts() log.Options {
	logOpts := log.Options{
		ReportTimestamp: true,
		Prefix:          "blumbike",
		Level:           log.InfoLevel,
		ReportCaller:    trace,
		Formatter:       log.JSONFormatter,
	}
	if Verbose {
		logOpts.Level = log.DebugLevel
	}

	return logOpts
}

func setupLogging(w io.Writer) {
	if w == nil {
		panic("must set writer")
	}

	logger = slog.New(log.NewWithOptions(w, newLoggerOpts()))
	slog.SetDefault(logger)
}

// setupMultiLogging also writes a JSON copy of the logs to a file
func setupMultiLogging(w io.Writer, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644) // nolint:gosec
	if err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}

	logger = slog.New(
		slogmulti.Fanout(
			log.NewWithOptions(w, newLoggerOpts()),
			log.NewWithOptions(f, newJSONLoggerOpts()),
		),
	)
	slog.SetDefault(logger)
	return nil
}

func globalPersistentPreRun(cmd *cobra.Command, _ []string) {
	setupLogging(cmd.OutOrStderr())
}
