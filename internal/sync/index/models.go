package index

// Run statuses
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

type Run struct {
	ID               string   `json:"id"`
	Direction        string   `json:"direction"`
	Organisation     string   `json:"organisation"`
	Repositories     []string `json:"repositories"`
	LocalDir         string   `json:"localDir"`
	Status           string   `json:"status"`
	Error            string   `json:"error,omitempty"`
	StartedAt        int64    `json:"startedAt"`
	FinishedAt       int64    `json:"finishedAt"`
	FilesSkipped     int      `json:"filesSkipped"`
	FilesTransferred int      `json:"filesTransferred"`
	FilesFailed      int      `json:"filesFailed"`
	PackagesSkipped  int      `json:"packagesSkipped"`
	PackagesCreated  int      `json:"packagesCreated"`
	PackagesFailed   int      `json:"packagesFailed"`
}

type Failure struct {
	RunID   string `json:"runId"`
	Kind    string `json:"kind"`
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
