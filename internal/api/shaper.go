package api

import (
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"google.golang.org/api/drive/v3"
)

// RequestShaper applies the parameters every Drive call needs so that folders in
// shared drives behave like folders in My Drive.
type RequestShaper struct {
	client *Client
}

func NewRequestShaper(client *Client) *RequestShaper {
	return &RequestShaper{client: client}
}

func (s *RequestShaper) ShapeFilesList(call *drive.FilesListCall, reqCtx *types.RequestContext) *drive.FilesListCall {
	call = call.SupportsAllDrives(true).IncludeItemsFromAllDrives(true)
	if reqCtx.DriveID != "" {
		call = call.DriveId(reqCtx.DriveID).Corpora("drive")
	}
	return call
}

func (s *RequestShaper) ShapeFilesGet(call *drive.FilesGetCall, reqCtx *types.RequestContext) *drive.FilesGetCall {
	return call.SupportsAllDrives(true)
}

func (s *RequestShaper) ShapeFilesCreate(call *drive.FilesCreateCall, reqCtx *types.RequestContext) *drive.FilesCreateCall {
	return call.SupportsAllDrives(true)
}

func (s *RequestShaper) ShapeFilesUpdate(call *drive.FilesUpdateCall, reqCtx *types.RequestContext) *drive.FilesUpdateCall {
	return call.SupportsAllDrives(true)
}
