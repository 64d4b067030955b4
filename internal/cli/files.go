package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/dl-alexandre/gdrvflow/internal/files"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/resolver"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <local-file> <relative-path>",
	Short: "Upload a file to a path under the target folder",
	Long: `Upload a local file (or "-" for stdin) to relative-path under the target
folder. Missing intermediate folders are created. An existing file at the path
is updated in place unless --fail-if-exists is set.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <file-id>",
	Short: "Download a file's content by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var (
	uploadMimeType string
	fetchOutput    string
)

func init() {
	uploadCmd.Flags().String("folder", "", "Target folder ID the path is resolved under")
	uploadCmd.Flags().Bool("fail-if-exists", false, "Fail instead of updating an existing file")
	uploadCmd.Flags().StringVar(&uploadMimeType, "mime-type", "", "MIME type (detected from content when empty)")
	bindFlag(uploadCmd, "upload.targetFolder", "folder")
	bindFlag(uploadCmd, "upload.failIfExists", "fail-if-exists")

	fetchCmd.Flags().StringVarP(&fetchOutput, "out", "o", "-", "Output file (- for stdout)")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(fetchCmd)
}

// UploadOutput is the result of an upload.
type UploadOutput struct {
	Path           string            `json:"path"`
	FileID         string            `json:"fileId"`
	Created        bool              `json:"created"`
	MimeType       string            `json:"mimeType"`
	FolderChainIDs []string          `json:"folderChainIds"`
	FoldersCreated int               `json:"foldersCreated"`
	Attributes     map[string]string `json:"attributes"`
}

func (u *UploadOutput) AsTableRenderer() types.TableRenderer {
	return attributeTable(u.Attributes)
}

func runUpload(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := logging.ContextWithTraceID(cmd.Context(), out.TraceID())
	cfg := appConfig

	if err := cfg.ValidateUpload(); err != nil {
		return out.WriteError("upload", err)
	}

	var content io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return out.WriteError("upload", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
				fmt.Sprintf("cannot open %s: %v", args[0], err)).Build(), err))
		}
		defer f.Close()
		content = f
	}

	store, err := newRemoteStore(ctx, cfg, utils.ScopesAll)
	if err != nil {
		return out.WriteError("upload", err)
	}

	res, err := resolver.NewUploadResolver(store, logger, nil).Upload(ctx, resolver.UploadRequest{
		RootFolderID: cfg.Upload.TargetFolder,
		RelativePath: args[1],
		Content:      content,
		MimeType:     uploadMimeType,
		FailIfExists: cfg.Upload.FailIfExists,
	})
	if err != nil {
		return out.WriteErrorData("upload", err, map[string]interface{}{
			"path":       args[1],
			"attributes": resolver.ErrorAttributes(err),
		})
	}

	verb := "Updated"
	if res.Created {
		verb = "Created"
	}
	out.Log("%s %s (%s)", verb, args[1], res.FileID)
	return out.WriteSuccess("upload", &UploadOutput{
		Path:           args[1],
		FileID:         res.FileID,
		Created:        res.Created,
		MimeType:       res.MimeType,
		FolderChainIDs: res.FolderChainIDs,
		FoldersCreated: res.FoldersCreated,
		Attributes:     res.Attributes(),
	})
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.OutputFormat, flags.Quiet, flags.Verbose)
	ctx := logging.ContextWithTraceID(cmd.Context(), out.TraceID())

	store, err := newRemoteStore(ctx, appConfig, utils.ScopesListing)
	if err != nil {
		return out.WriteError("fetch", err)
	}
	mgr := files.NewManager(store, logger)

	if fetchOutput == "-" {
		// stdout carries the content, so the result is only logged.
		res, err := mgr.Fetch(ctx, args[0], cmd.OutOrStdout())
		if err != nil {
			out.w = cmd.ErrOrStderr()
			return out.WriteError("fetch", err)
		}
		out.Verbose("Fetched %s (%d bytes)", res.Entry.Name, res.Bytes)
		return nil
	}

	entry, err := mgr.Stat(ctx, args[0])
	if err != nil {
		return out.WriteError("fetch", err)
	}
	if err := files.CheckDownloadable(entry); err != nil {
		return out.WriteError("fetch", err)
	}
	f, err := os.Create(fetchOutput)
	if err != nil {
		return out.WriteError("fetch", utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("cannot create %s: %v", fetchOutput, err)).Build(), err))
	}
	res, err := mgr.Stream(ctx, entry, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(fetchOutput)
		return out.WriteError("fetch", err)
	}

	out.Log("Downloaded %s to %s", entry.Name, fetchOutput)
	attrs := res.Attributes()
	attrs["bytes"] = fmt.Sprint(res.Bytes)
	attrs["path"] = fetchOutput
	return out.WriteSuccess("fetch", attributeTable(attrs))
}
