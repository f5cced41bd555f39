// Package cmd provides the command-line interface of vmsim.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"
)

const envPrefix = "VMSIM_"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vmsim",
	Short: "vmsim simulates a demand-paged virtual memory manager.",
	Long: `vmsim runs concurrent processes on a virtual memory manager ` +
		`with a fixed number of physical frames, a software TLB, and a ` +
		`swap backing store. Every flag can also be set with a VMSIM_ ` +
		`environment variable, for example VMSIM_FRAMES=32.`,
	SilenceUsage:      true,
	PersistentPreRunE: configure,
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env",
		"File to load environment variables from.")
	rootCmd.PersistentFlags().String("log-level", "info",
		"Log level, one of debug, info, warn, error.")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}
}

func configure(cmd *cobra.Command, _ []string) error {
	envFile, _ := cmd.Flags().GetString("env-file")

	err := godotenv.Load(envFile)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", envFile, err)
	}

	if err := applyEnv(cmd.Flags()); err != nil {
		return err
	}

	levelName, _ := cmd.Flags().GetString("log-level")

	return initLogger(levelName)
}

// envName returns the environment variable that sets a flag.
func envName(flagName string) string {
	return envPrefix +
		strings.ToUpper(strings.ReplaceAll(flagName, "-", "_"))
}

// applyEnv sets every flag not given on the command line from its
// environment variable.
func applyEnv(flags *pflag.FlagSet) error {
	var errs []error

	flags.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			return
		}

		value, found := os.LookupEnv(envName(f.Name))
		if !found {
			return
		}

		if err := flags.Set(f.Name, value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", envName(f.Name), err))
		}
	})

	return errors.Join(errs...)
}

func initLogger(levelName string) error {
	var level slog.Level

	err := level.UnmarshalText([]byte(levelName))
	if err != nil {
		return fmt.Errorf("invalid log level %q", levelName)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	return nil
}
