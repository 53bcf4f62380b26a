package types

// OutputFormat selects how command results are rendered
type OutputFormat string

const (
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatTable OutputFormat = "table"
)

// GlobalFlags holds flags shared by every command
type GlobalFlags struct {
	Profile      string
	Organisation string
	Username     string
	Token        string
	LocalDir     string
	OutputFormat OutputFormat
	Quiet        bool
	Verbose      bool
	Debug        bool
	Config       string
	LogFile      string
	DryRun       bool
	Concurrency  int
	NoHistory    bool
	JSON         bool
}

// CLIError is the machine readable error envelope
type CLIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// CLIWarning is a non-fatal notice attached to command output
type CLIWarning struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// CLIOutput is the JSON envelope every command writes
type CLIOutput struct {
	SchemaVersion string       `json:"schemaVersion"`
	TraceID       string       `json:"traceId"`
	Command       string       `json:"command"`
	Data          interface{}  `json:"data"`
	Warnings      []CLIWarning `json:"warnings"`
	Errors        []CLIError   `json:"errors"`
}

// RequestType classifies remote calls for logging
type RequestType string

const (
	RequestTypeList     RequestType = "list"
	RequestTypeMetadata RequestType = "metadata"
	RequestTypeDownload RequestType = "download"
	RequestTypeUpload   RequestType = "upload"
	RequestTypeMutation RequestType = "mutation"
)

// RequestContext carries per-run request details through the remote client
type RequestContext struct {
	Organisation string
	Repository   string
	Package      string
	RequestType  RequestType
	TraceID      string
}
