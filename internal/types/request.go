package types

// RequestType tags a request context with the kind of work it performs.
type RequestType string

const (
	RequestTypeListOrSearch   RequestType = "ListOrSearch"
	RequestTypeGetByID        RequestType = "GetByID"
	RequestTypeMutation       RequestType = "Mutation"
	RequestTypeDownloadOrMeta RequestType = "DownloadOrExport"
)

// RequestContext carries per-request tracing information through the API layer.
type RequestContext struct {
	Profile           string      `json:"profile"`
	DriveID           string      `json:"driveId,omitempty"`
	InvolvedFileIDs   []string    `json:"involvedFileIds"`
	InvolvedParentIDs []string    `json:"involvedParentIds"`
	RequestType       RequestType `json:"requestType"`
	TraceID           string      `json:"traceId"`
}
