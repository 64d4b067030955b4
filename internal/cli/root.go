package cli

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	globalFlags    types.GlobalFlags
	logger         logging.Logger = logging.NewNoOpLogger()
	appConfig      *config.Config
	debugTransport *logging.DebugTransport
)

// flagBindings maps config keys to the flag that overrides them, per command.
var flagBindings = map[*cobra.Command]map[string]string{}

var rootCmd = &cobra.Command{
	Use:   "gdrvflow",
	Short: "Incremental Google Drive listing, upload and fetch",
	Long: `gdrvflow lists a Drive folder tree incrementally, remembering a watermark
between runs so each run emits only new or modified entries. It also uploads
files to a relative path under a folder, creating missing folders, and fetches
file content by ID.

Results are JSON by default for automation and scripting.`,
	Version:       version.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateGlobalFlags(); err != nil {
			return err
		}
		cfg, err := loadConfig(cmd)
		if err != nil {
			return NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), globalFlags.OutputFormat, globalFlags.Quiet, globalFlags.Verbose).
				WriteError("config", err)
		}
		appConfig = cfg
		return initLogger(cfg)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "Print the version number of gdrvflow",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Get().String())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.Config, "config", "", "Path to configuration file")
	pf.StringVar(&globalFlags.Profile, "profile", "default", "Credentials profile to use")
	pf.StringVar((*string)(&globalFlags.OutputFormat), "output", "json", "Output format (json, table)")
	pf.BoolVar(&globalFlags.JSON, "json", false, "Output in JSON format (alias for --output json)")
	pf.BoolVarP(&globalFlags.Quiet, "quiet", "q", false, "Suppress non-essential output")
	pf.BoolVarP(&globalFlags.Verbose, "verbose", "v", false, "Enable verbose logging")
	pf.BoolVar(&globalFlags.Debug, "debug", false, "Log every Drive HTTP exchange")
	pf.StringVar(&globalFlags.LogFile, "log-file", "", "Path to log file")

	bindFlag(rootCmd, "profile", "profile")
	bindFlag(rootCmd, "logFile", "log-file")

	rootCmd.AddCommand(versionCmd)
}

// bindFlag records that flag overrides config key when cmd runs.
func bindFlag(cmd *cobra.Command, key, flag string) {
	if flagBindings[cmd] == nil {
		flagBindings[cmd] = map[string]string{}
	}
	flagBindings[cmd][key] = flag
}

func validateGlobalFlags() error {
	if globalFlags.JSON {
		globalFlags.OutputFormat = types.OutputFormatJSON
	}
	if globalFlags.OutputFormat != types.OutputFormatJSON && globalFlags.OutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s", globalFlags.OutputFormat)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loader := config.NewLoader(globalFlags.Config)
	for c := cmd; c != nil; c = c.Parent() {
		for key, name := range flagBindings[c] {
			flag := lookupFlag(cmd, name)
			if err := loader.BindFlag(key, flag); err != nil {
				return nil, err
			}
		}
	}
	return loader.Load()
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}
	return cmd.InheritedFlags().Lookup(name)
}

func initLogger(cfg *config.Config) error {
	level, err := logging.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logConfig := logging.DefaultLogConfig()
	logConfig.Level = level
	logConfig.OutputFile = cfg.LogFile
	logConfig.EnableConsole = !globalFlags.Quiet
	logConfig.EnableDebug = globalFlags.Debug
	if globalFlags.Verbose {
		logConfig.Level = logging.DEBUG
	}

	l, transport, err := logging.NewDebugLoggerWithTransport(logConfig)
	if err != nil {
		return err
	}
	logger = l
	debugTransport = transport
	return nil
}

// Execute runs the root command and returns the error that ended it, if any.
// Command errors have already been written to stdout.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// GetGlobalFlags returns the global flags
func GetGlobalFlags() types.GlobalFlags {
	return globalFlags
}

// GetLogger returns the global logger
func GetLogger() logging.Logger {
	return logger
}
