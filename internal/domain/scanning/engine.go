package scanning

import "context"

// ScanHandle is the engine-assigned identifier of a launched crawl or active
// scan. A handle is only meaningful for the phase that produced it.
type ScanHandle string

// String returns the raw handle value.
func (h ScanHandle) String() string { return string(h) }

// AjaxStatus is the state of the engine-managed AJAX crawler.
type AjaxStatus string

const (
	AjaxStatusIdle    AjaxStatus = "idle"
	AjaxStatusRunning AjaxStatus = "running"
	AjaxStatusStopped AjaxStatus = "stopped"
)

// String returns the string representation of the AjaxStatus.
func (s AjaxStatus) String() string { return string(s) }

// ParseAjaxStatus maps the engine's textual state onto an AjaxStatus. Anything
// the engine reports that is neither running nor stopped is treated as idle.
func ParseAjaxStatus(s string) AjaxStatus {
	switch s {
	case "running":
		return AjaxStatusRunning
	case "stopped":
		return AjaxStatusStopped
	default:
		return AjaxStatusIdle
	}
}

// Engine is the narrow interface to the external crawling and scanning engine.
//
// Every method fails with ErrEngineUnavailable when the engine cannot be
// reached and with ErrInvalidTarget when the engine rejects the target.
// Implementations must not retry; retry and polling policy belong to callers.
type Engine interface {
	// LaunchCrawl starts a spider crawl of target.
	LaunchCrawl(ctx context.Context, target Target) (ScanHandle, error)
	// CrawlStatus returns the crawl completion percentage in [0,100].
	CrawlStatus(ctx context.Context, h ScanHandle) (int, error)
	// CrawlResults returns the URLs discovered by the crawl.
	CrawlResults(ctx context.Context, h ScanHandle) ([]string, error)

	// LaunchAjaxCrawl starts the AJAX crawler. The engine runs a single AJAX
	// crawl at a time, so there is no handle.
	LaunchAjaxCrawl(ctx context.Context, target Target) error
	// AjaxStatus returns the AJAX crawler state.
	AjaxStatus(ctx context.Context) (AjaxStatus, error)
	// AjaxResults returns up to count URLs found by the AJAX crawler, starting at offset.
	AjaxResults(ctx context.Context, offset, count int) ([]string, error)

	// LaunchActiveScan starts an active scan of target.
	LaunchActiveScan(ctx context.Context, target Target) (ScanHandle, error)
	// ActiveScanStatus returns the active scan completion percentage in [0,100].
	ActiveScanStatus(ctx context.Context, h ScanHandle) (int, error)

	// ListHosts returns every host the engine has seen.
	ListHosts(ctx context.Context) ([]string, error)
	// ListAlerts returns the alerts recorded for target.
	ListAlerts(ctx context.Context, target Target) ([]Alert, error)
}

// InjectionTool runs the external SQL-injection tester against a target and
// returns its captured standard output.
type InjectionTool interface {
	Run(ctx context.Context, target Target) (string, error)
}

// ReportArchive stores raw tool output for later inspection.
type ReportArchive interface {
	Store(ctx context.Context, key string, report string) error
}
