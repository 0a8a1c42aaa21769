package bus

import "github.com/google/uuid"

// DownloadRequest asks the fetch pipeline for the body behind URL.
// ID correlates the request with its FetchedBuffer.
type DownloadRequest struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// NewDownloadRequest creates a request with a fresh correlation ID.
func NewDownloadRequest(url string) DownloadRequest {
	return DownloadRequest{ID: uuid.NewString(), URL: url}
}

// FetchedBuffer is a complete HTTP response body for one DownloadRequest.
type FetchedBuffer struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Body []byte `json:"-"`
}

// SystemEvent is a typed event flowing through the bus for observability.
// Used for bridge failures and dropped fetches.
type SystemEvent struct {
	Type   string      `json:"type"`   // e.g. "bridge.fatal", "fetch.failed"
	Source string      `json:"source"` // e.g. "bridge", "fetch"
	Data   interface{} `json:"data"`
}

// FetchFailure is the Data of a SystemFetchFailed event.
type FetchFailure struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Error string `json:"error"`
}

const (
	SystemBridgeFatal = "bridge.fatal"
	SystemFetchFailed = "fetch.failed"
)
