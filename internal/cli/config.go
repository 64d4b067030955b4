package cli

import (
	"net/url"

	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  "Commands for inspecting gdrvflow configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display the configuration after applying the config file, environment and flags. Secrets are redacted.",
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

const redacted = "REDACTED"

func runConfigShow(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.OutputFormat, flags.Quiet, flags.Verbose)
	return out.WriteSuccess("config.show", redactConfig(appConfig))
}

// redactConfig returns a copy of cfg safe to print.
func redactConfig(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Sink.S3.SecretKey != "" {
		c.Sink.S3.SecretKey = redacted
	}
	if c.Sink.S3.AccessKey != "" {
		c.Sink.S3.AccessKey = redacted
	}
	if u, err := url.Parse(c.Watermark.RedisURL); err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), redacted)
			c.Watermark.RedisURL = u.String()
		}
	}
	return &c
}
