package scanning

// Progress event names emitted while streaming a crawl.
const (
	EventSpiderProgress = "spiderProgress"
	EventSpiderComplete = "spiderComplete"
	EventSpiderResults  = "spiderResults"
	EventSpiderError    = "spiderError"
)

// ProgressEvent is one step of a streamed crawl. A stream emits zero or more
// spiderProgress events, then exactly one spiderComplete and one spiderResults.
type ProgressEvent struct {
	Name string
	Data string
}

// ScanReport is the outcome of a full phase sequence against one target.
type ScanReport struct {
	Target      string
	CrawledURLs []string
	AjaxURLs    []string
	// AjaxTimedOut is set when the AJAX crawl was abandoned at its deadline.
	AjaxTimedOut bool
	ActiveScan   ScanHandle
	Hosts        []string
	Alerts       []Alert
}
