// Package reporter defines the typed progress-event stream the core
// emits instead of rendering UI directly (spec.md §6: "Reporter events...
// Implementors are external; the core passes opaque handles"). Grounded
// on golang-dep's internal/feedback package, which separates computed
// facts (ConstraintFeedback, BrokenImportFeedback) from how they get
// logged (LogFeedback(logger)) — here the "fact" half is one struct per
// event kind, and the "render" half is whatever Reporter implementation
// the front-end supplies.
package reporter

import "time"

// Handle is an opaque token a Start event returns and its matching
// Progress/Complete events carry back, letting an implementor correlate
// without the core exposing any internal identifier scheme.
type Handle uint64

// DownloadStart reports the beginning of a single artifact fetch.
type DownloadStart struct {
	Handle       Handle
	Package      string
	Version      string
	URL          string
	TotalBytes   int64 // -1 when the server didn't report Content-Length
}

// DownloadProgress reports incremental bytes received for an in-flight
// download.
type DownloadProgress struct {
	Handle       Handle
	BytesSoFar   int64
}

// DownloadComplete reports the terminal state of a download.
type DownloadComplete struct {
	Handle Handle
	Err    error
	Took   time.Duration
}

// BuildStart reports the beginning of a source-build invocation.
type BuildStart struct {
	Handle  Handle
	Package string
	Version string
	Hook    string // build_wheel | build_sdist | build_editable
}

// BuildComplete reports the terminal state of a source build.
type BuildComplete struct {
	Handle Handle
	Err    error
	Took   time.Duration
}

// CheckoutStart reports the beginning of a git checkout.
type CheckoutStart struct {
	Handle    Handle
	Package   string
	URL       string
	Reference string
}

// CheckoutComplete reports the terminal state of a git checkout,
// including the resolved commit once known.
type CheckoutComplete struct {
	Handle     Handle
	PreciseOID string
	Err        error
	Took       time.Duration
}

// Reporter receives the core's progress events. Every method must return
// promptly: the core calls these synchronously on whichever goroutine is
// doing the work, and a slow Reporter slows the resolve/install it's
// observing.
type Reporter interface {
	OnDownloadStart(DownloadStart)
	OnDownloadProgress(DownloadProgress)
	OnDownloadComplete(DownloadComplete)
	OnBuildStart(BuildStart)
	OnBuildComplete(BuildComplete)
	OnCheckoutStart(CheckoutStart)
	OnCheckoutComplete(CheckoutComplete)
}

// Null discards every event; the zero value of Reporter a caller gets
// when it doesn't care about progress.
type Null struct{}

func (Null) OnDownloadStart(DownloadStart)       {}
func (Null) OnDownloadProgress(DownloadProgress) {}
func (Null) OnDownloadComplete(DownloadComplete) {}
func (Null) OnBuildStart(BuildStart)             {}
func (Null) OnBuildComplete(BuildComplete)       {}
func (Null) OnCheckoutStart(CheckoutStart)       {}
func (Null) OnCheckoutComplete(CheckoutComplete) {}

var _ Reporter = Null{}
