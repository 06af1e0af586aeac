package workflow

import "slices"

// Status is the single phase of the current submission workflow.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

const (
	MsgEmptyURL    = "Please enter an Instagram URL"
	MsgInvalidDrop = "Please drop a valid Instagram URL"
	MsgProcessing  = "Processing content..."
	MsgProcessed   = `Content processed successfully! Click "Save" to download files.`

	// MsgDownloadFailed stands in for a backend failure that carried no message.
	MsgDownloadFailed = "Download failed"
	// MsgUnexpected stands in for a transport failure without any text.
	MsgUnexpected = "Something went wrong while processing content"
)

func (s Status) String() string {
	return string(s)
}

// FileDescriptor describes one artifact the extraction backend prepared for retrieval.
type FileDescriptor struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size string `json:"size"`
}

// State is the whole workflow bundle shared by the input collector and the orchestrator.
// Transitions are value methods and never mutate the receiver.
type State struct {
	URL        string           `json:"url"`
	IsDragging bool             `json:"is_dragging"`
	Status     Status           `json:"status"`
	Message    string           `json:"message"`
	Files      []FileDescriptor `json:"files"`
	ShowSave   bool             `json:"show_save"`
}

// Initial returns the state a fresh session starts with.
func Initial() State {
	return State{Status: StatusIdle, Files: []FileDescriptor{}}
}

func (s State) WithURL(url string) State {
	s.URL = url

	return s
}

func (s State) Dragging(dragging bool) State {
	s.IsDragging = dragging

	return s
}

// Rejected records a locally detected input problem. The file list and save actions are left alone.
func (s State) Rejected(msg string) State {
	s.Status = StatusError
	s.Message = msg

	return s
}

// Loading enters the request lifecycle. The previous file list stays visible until the response lands.
func (s State) Loading() State {
	s.Status = StatusLoading
	s.Message = MsgProcessing
	s.ShowSave = false

	return s
}

// Succeeded replaces the file collection wholesale.
func (s State) Succeeded(files []FileDescriptor) State {
	s.Files = cloneFiles(files)
	s.Status = StatusSuccess
	s.Message = MsgProcessed
	s.ShowSave = true

	return s
}

// Failed records a failed submission without clearing the last successful result.
func (s State) Failed(msg string) State {
	s.Status = StatusError
	s.Message = msg
	s.ShowSave = false

	return s
}

func (s State) IsLoading() bool {
	return s.Status == StatusLoading
}

// SaveActivated reports whether the transition prev -> next switched the save actions on
// for a non-empty file collection.
func SaveActivated(prev, next State) bool {
	return !prev.ShowSave && next.ShowSave && len(next.Files) > 0
}

func (s State) clone() State {
	s.Files = cloneFiles(s.Files)

	return s
}

func cloneFiles(files []FileDescriptor) []FileDescriptor {
	if files == nil {
		return []FileDescriptor{}
	}

	return slices.Clone(files)
}
