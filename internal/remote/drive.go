package remote

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dl-alexandre/gdrvflow/internal/api"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

const (
	// EntryFields is the per-object field mask used for listings and lookups.
	EntryFields = "id,name,mimeType,createdTime,modifiedTime,parents"
	listFields  = "nextPageToken,files(" + EntryFields + ")"
)

// DriveStore implements Store against the Drive v3 API.
type DriveStore struct {
	client  *api.Client
	shaper  *api.RequestShaper
	profile string
	driveID string
}

// NewDriveStore wraps an API client. driveID is optional and scopes listings to a shared drive.
func NewDriveStore(client *api.Client, profile, driveID string) *DriveStore {
	return &DriveStore{
		client:  client,
		shaper:  api.NewRequestShaper(client),
		profile: profile,
		driveID: driveID,
	}
}

func (s *DriveStore) reqCtx(ctx context.Context, kind types.RequestType) *types.RequestContext {
	reqCtx := api.NewRequestContext(s.profile, s.driveID, kind)
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		reqCtx.TraceID = traceID
	}
	return reqCtx
}

func (s *DriveStore) ListChildren(ctx context.Context, parentID string, q Query, pageToken string, pageSize int) (*Page, error) {
	reqCtx := s.reqCtx(ctx, types.RequestTypeListOrSearch)
	reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, parentID)

	call := s.client.Service().Files.List().Q(BuildChildrenQuery(parentID, q))
	call = s.shaper.ShapeFilesList(call, reqCtx)
	call = call.Fields(googleapi.Field(listFields))
	if pageSize > 0 {
		call = call.PageSize(int64(pageSize))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.FileList, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}

	page := &Page{
		Items:         make([]*types.Entry, 0, len(result.Files)),
		NextPageToken: result.NextPageToken,
	}
	for _, f := range result.Files {
		entry, err := ConvertDriveFile(f)
		if err != nil {
			return nil, err
		}
		entry.ParentFolderID = parentID
		page.Items = append(page.Items, entry)
	}
	return page, nil
}

// GetObject fetches one object's metadata. An empty fields mask means EntryFields.
func (s *DriveStore) GetObject(ctx context.Context, id string, fields string) (*types.Entry, error) {
	if fields == "" {
		fields = EntryFields
	}
	reqCtx := s.reqCtx(ctx, types.RequestTypeGetByID)
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, id)

	call := s.client.Service().Files.Get(id)
	call = s.shaper.ShapeFilesGet(call, reqCtx)
	call = call.Fields(googleapi.Field(fields))

	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.File, error) {
		return call.Context(ctx).Do()
	})
	if err != nil {
		return nil, err
	}
	return ConvertDriveFile(result)
}

func (s *DriveStore) GetObjectContent(ctx context.Context, id string) (io.ReadCloser, error) {
	reqCtx := s.reqCtx(ctx, types.RequestTypeDownloadOrMeta)
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, id)

	call := s.client.Service().Files.Get(id)
	call = s.shaper.ShapeFilesGet(call, reqCtx)

	// Only the response headers are retried; the body is streamed to the caller.
	return api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (io.ReadCloser, error) {
		resp, err := call.Context(ctx).Download()
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

func (s *DriveStore) CreateObject(ctx context.Context, meta ObjectMeta, content io.Reader) (string, error) {
	reqCtx := s.reqCtx(ctx, types.RequestTypeMutation)
	if meta.ParentID != "" {
		reqCtx.InvolvedParentIDs = append(reqCtx.InvolvedParentIDs, meta.ParentID)
	}

	metadata := &drive.File{
		Name:     meta.Name,
		MimeType: meta.MimeType,
	}
	if meta.ParentID != "" {
		metadata.Parents = []string{meta.ParentID}
	}

	call := s.client.Service().Files.Create(metadata)
	call = s.shaper.ShapeFilesCreate(call, reqCtx)
	call = call.Fields("id")
	if content != nil {
		call = call.Media(content, googleapi.ContentType(meta.MimeType))
	}

	// A consumed stream cannot be replayed, so uploads with content get one attempt.
	if content != nil {
		result, err := call.Context(ctx).Do()
		if err != nil {
			return "", api.Classify(s.client, err, reqCtx)
		}
		return result.Id, nil
	}

	// A failed create may still have landed, so later attempts look for the
	// object first instead of creating a sibling with the same name.
	attempt := 0
	result, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.File, error) {
		attempt++
		if attempt > 1 {
			existing, err := s.findCreated(ctx, meta, reqCtx)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				s.client.Logger().Warn("Reusing object created by a failed attempt",
					logging.F("name", meta.Name),
					logging.F("parentId", meta.ParentID),
					logging.F("id", existing.Id),
				)
				return existing, nil
			}
		}
		return call.Context(ctx).Do()
	})
	if err != nil {
		return "", err
	}
	return result.Id, nil
}

// findCreated returns the child of meta.ParentID with meta's name and MIME type,
// or nil when there is none. Errors are returned unclassified for the retry loop.
func (s *DriveStore) findCreated(ctx context.Context, meta ObjectMeta, reqCtx *types.RequestContext) (*drive.File, error) {
	if meta.ParentID == "" {
		return nil, nil
	}
	call := s.client.Service().Files.List().Q(BuildChildrenQuery(meta.ParentID, Query{NameEquals: meta.Name}))
	call = s.shaper.ShapeFilesList(call, reqCtx)
	call = call.Fields(googleapi.Field(listFields)).PageSize(1)
	list, err := call.Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	for _, f := range list.Files {
		if f.MimeType == meta.MimeType {
			return f, nil
		}
	}
	return nil, nil
}

func (s *DriveStore) UpdateObjectContent(ctx context.Context, id string, content io.Reader, mimeType string) (string, error) {
	reqCtx := s.reqCtx(ctx, types.RequestTypeMutation)
	reqCtx.InvolvedFileIDs = append(reqCtx.InvolvedFileIDs, id)

	call := s.client.Service().Files.Update(id, &drive.File{})
	call = s.shaper.ShapeFilesUpdate(call, reqCtx)
	call = call.Fields("id")
	if mimeType != "" {
		call = call.Media(content, googleapi.ContentType(mimeType))
	} else {
		call = call.Media(content)
	}

	result, err := call.Context(ctx).Do()
	if err != nil {
		return "", api.Classify(s.client, err, reqCtx)
	}
	return result.Id, nil
}

// Probe fetches the caller's About record to verify credentials and connectivity.
func (s *DriveStore) Probe(ctx context.Context) error {
	reqCtx := s.reqCtx(ctx, types.RequestTypeGetByID)
	_, err := api.ExecuteWithRetry(ctx, s.client, reqCtx, func() (*drive.About, error) {
		return s.client.Service().About.Get().Fields("user(emailAddress)").Context(ctx).Do()
	})
	return err
}

// BuildChildrenQuery renders the Drive search expression for a children listing.
func BuildChildrenQuery(parentID string, q Query) string {
	clauses := []string{fmt.Sprintf("'%s' in parents", EscapeQueryString(parentID))}
	if !q.IncludeTrashed {
		clauses = append(clauses, "trashed = false")
	}
	if q.NameEquals != "" {
		clauses = append(clauses, fmt.Sprintf("name = '%s'", EscapeQueryString(q.NameEquals)))
	}
	return strings.Join(clauses, " and ")
}

// EscapeQueryString escapes backslashes and single quotes for a Drive query literal.
func EscapeQueryString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ConvertDriveFile maps Drive metadata onto an Entry. Path is left for the caller.
func ConvertDriveFile(f *drive.File) (*types.Entry, error) {
	created, err := types.ParseTime(f.CreatedTime)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInternalError,
			fmt.Sprintf("invalid createdTime %q on %s", f.CreatedTime, f.Id)).Build())
	}
	modified, err := types.ParseTime(f.ModifiedTime)
	if err != nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInternalError,
			fmt.Sprintf("invalid modifiedTime %q on %s", f.ModifiedTime, f.Id)).Build())
	}
	entry := &types.Entry{
		ID:         f.Id,
		Name:       f.Name,
		IsFolder:   f.MimeType == utils.MimeTypeFolder,
		CreatedAt:  created,
		ModifiedAt: modified,
		MimeType:   f.MimeType,
	}
	if len(f.Parents) > 0 {
		entry.ParentFolderID = f.Parents[0]
	}
	return entry, nil
}
