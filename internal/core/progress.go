package core

// Phase indicates the current stage of an export or import.
type Phase string

const (
	PhaseMetadata   Phase = "metadata"
	PhaseFetching   Phase = "fetching"
	PhaseBuilding   Phase = "building"
	PhaseReading    Phase = "reading"
	PhaseValidating Phase = "validating"
	PhaseUploading  Phase = "uploading"
	PhaseRetrying   Phase = "retrying"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
)

// ProgressEvent is a snapshot of a running operation.
type ProgressEvent struct {
	Phase   Phase
	Current int // pages fetched or batches written
	Total   int // 0 when unknown
	Objects int // objects handled so far
	Attempt int // set for PhaseRetrying
	Error   string
}

// Percent returns the progress as a percentage (0-100), or 0 when the
// total is unknown.
func (e ProgressEvent) Percent() int {
	if e.Total <= 0 {
		return 0
	}
	p := e.Current * 100 / e.Total
	if p > 100 {
		return 100
	}
	return p
}

// ProgressFunc receives progress events. It is called synchronously and
// must not block.
type ProgressFunc func(ProgressEvent)

func (f ProgressFunc) notify(e ProgressEvent) {
	if f != nil {
		f(e)
	}
}
