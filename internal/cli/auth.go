package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/gdrvflow/internal/auth"
	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authentication commands",
	Long:  "Manage the service account key used to reach Google Drive",
}

var authImportCmd = &cobra.Command{
	Use:   "import <key-file>",
	Short: "Store a service account key in the system keyring",
	Long:  `Validate a service account JSON key (or "-" for stdin) and store it in the keyring under the current profile.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAuthImport,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show authentication status",
	Long:  "Display which service account the current profile resolves to and, with --check, whether Drive is reachable",
	RunE:  runAuthStatus,
}

var authRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the stored key for the current profile",
	RunE:  runAuthRemove,
}

var authCheck bool

func init() {
	authStatusCmd.Flags().BoolVar(&authCheck, "check", false, "Call Drive to verify the credentials work")

	authCmd.AddCommand(authImportCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authRemoveCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthImport(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.OutputFormat, flags.Quiet, flags.Verbose)

	var data []byte
	var err error
	if args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return out.WriteError("auth.import", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("cannot read key: %v", err)).Build(), err))
	}

	key, err := auth.NewManager(appConfig.Credentials, logger).ImportKey(appConfig.Profile, data)
	if err != nil {
		return out.WriteError("auth.import", err)
	}
	out.Log("Stored key for %s under profile %s", key.ClientEmail, appConfig.Profile)
	return out.WriteSuccess("auth.import", attributeTable{
		"profile":     appConfig.Profile,
		"clientEmail": key.ClientEmail,
		"projectId":   key.ProjectID,
	})
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.OutputFormat, flags.Quiet, flags.Verbose)
	mgr := auth.NewManager(appConfig.Credentials, logger)

	status := attributeTable{
		"profile":       appConfig.Profile,
		"authenticated": "false",
	}
	data, source, err := mgr.LoadKey(appConfig.Profile)
	if err != nil {
		return out.WriteSuccess("auth.status", status)
	}
	key, err := auth.ParseServiceAccountKey(data)
	if err != nil {
		return out.WriteError("auth.status", err)
	}
	status["authenticated"] = "true"
	status["source"] = source
	status["clientEmail"] = key.ClientEmail
	status["projectId"] = key.ProjectID
	if appConfig.Credentials.ImpersonateUser != "" {
		status["impersonateUser"] = appConfig.Credentials.ImpersonateUser
	}

	if authCheck {
		if err := probe(cmd.Context()); err != nil {
			return out.WriteErrorData("auth.status", err, status)
		}
		status["reachable"] = "true"
	}
	return out.WriteSuccess("auth.status", status)
}

func probe(ctx context.Context) error {
	store, err := newRemoteStore(ctx, appConfig, utils.ScopesListing)
	if err != nil {
		return err
	}
	if p, ok := store.(remote.Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}

func runAuthRemove(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.OutputFormat, flags.Quiet, flags.Verbose)

	if err := auth.NewManager(appConfig.Credentials, logger).DeleteKey(appConfig.Profile); err != nil {
		return out.WriteError("auth.remove", err)
	}
	out.Log("Removed stored key for profile %s", appConfig.Profile)
	return out.WriteSuccess("auth.remove", attributeTable{"profile": appConfig.Profile})
}
