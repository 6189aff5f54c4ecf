package rodin

// Job status values reported by the status endpoint.
const (
	StatusWaiting    = "Waiting"
	StatusProcessing = "Processing"
	StatusDone       = "Done"
	StatusFailed     = "Failed"
)

// JobStatus is one remote sub-job's state. The set of JobStatus values is
// replaced wholesale on every poll; there is no incremental merge.
type JobStatus struct {
	UUID   string `json:"uuid"`
	Status string `json:"status"`
}

// UploadImage is one normalized reference image ready for the multipart
// payload.
type UploadImage struct {
	Name string
	Data []byte
}

// SubmitResponse is the generation endpoint's reply. The subscription key
// polls the aggregate sub-job status; the task UUID resolves downloads.
type SubmitResponse struct {
	Message string `json:"message,omitempty"`
	UUID    string `json:"uuid"`
	Jobs    struct {
		UUIDs           []string `json:"uuids"`
		SubscriptionKey string   `json:"subscription_key"`
	} `json:"jobs"`
}

// StatusResponse is the status endpoint's reply.
type StatusResponse struct {
	Error string      `json:"error,omitempty"`
	Jobs  []JobStatus `json:"jobs"`
}

// Asset is one downloadable file in a completed task's listing.
type Asset struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DownloadResponse is the download-listing endpoint's reply. Error is the
// literal string "OK" on success.
type DownloadResponse struct {
	Error string  `json:"error"`
	List  []Asset `json:"list"`
}
