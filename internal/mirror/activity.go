package mirror

import "time"

// ActivityKind names a mirror-tree action.
type ActivityKind string

const (
	// ActivityConverted means a document was converted and written.
	ActivityConverted ActivityKind = "converted"
	// ActivityFailed means a conversion failed and the mirror was left untouched.
	ActivityFailed ActivityKind = "failed"
	// ActivityMkdir means a mirror directory was created.
	ActivityMkdir ActivityKind = "mkdir"
	// ActivityRemoved means a mirror file or subtree was removed.
	ActivityRemoved ActivityKind = "removed"
	// ActivityMoveIgnored means a Moved event was dropped without touching the mirror.
	ActivityMoveIgnored ActivityKind = "move_ignored"
)

// Activity records one action taken on the mirror tree.
type Activity struct {
	Kind   ActivityKind
	Source string
	Dest   string
	Bytes  int
	Err    error
}

// CrawlStats summarizes one bulk pass.
type CrawlStats struct {
	Documents int
	Converted int
	Failed    int
	Duration  time.Duration
}

// Reporter receives mirror activity. Implementations must be safe for concurrent
// use: a bulk pass with several workers reports from several goroutines.
type Reporter interface {
	Report(Activity)
	CrawlComplete(CrawlStats)
}

type nopReporter struct{}

func (nopReporter) Report(Activity)          {}
func (nopReporter) CrawlComplete(CrawlStats) {}

// NopReporter discards all activity.
var NopReporter Reporter = nopReporter{}
