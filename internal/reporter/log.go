package reporter

import (
	"fmt"
	"log"
	"sync"
)

// handleInfo remembers the facts a Start event carried, so the matching
// Complete event's log line can include them without the caller having
// to repeat itself (mirrors golang-dep's feedback structs, which bundle
// every relevant fact into one value rather than splitting them across
// separate log calls).
type handleInfo struct {
	kind    string
	subject string
}

// Log renders every event as a single line through a *log.Logger,
// gated by Verbose for the Progress events — matching golang-dep's
// internal/util Logf (always) versus Vlogf (verbose-only) split.
type Log struct {
	Logger  *log.Logger
	Verbose bool

	mu      sync.Mutex
	handles map[Handle]handleInfo
}

func NewLog(logger *log.Logger, verbose bool) *Log {
	return &Log{Logger: logger, Verbose: verbose, handles: map[Handle]handleInfo{}}
}

func (l *Log) remember(h Handle, kind, subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handles[h] = handleInfo{kind: kind, subject: subject}
}

func (l *Log) forget(h Handle) handleInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	info := l.handles[h]
	delete(l.handles, h)
	return info
}

func (l *Log) OnDownloadStart(e DownloadStart) {
	subject := fmt.Sprintf("%s %s", e.Package, e.Version)
	l.remember(e.Handle, "download", subject)
	l.Logger.Printf("downloading %s from %s", subject, e.URL)
}

func (l *Log) OnDownloadProgress(e DownloadProgress) {
	if !l.Verbose {
		return
	}
	l.mu.Lock()
	info := l.handles[e.Handle]
	l.mu.Unlock()
	l.Logger.Printf("  %s: %d bytes", info.subject, e.BytesSoFar)
}

func (l *Log) OnDownloadComplete(e DownloadComplete) {
	info := l.forget(e.Handle)
	if e.Err != nil {
		l.Logger.Printf("download failed for %s: %v", info.subject, e.Err)
		return
	}
	l.Logger.Printf("downloaded %s in %s", info.subject, e.Took)
}

func (l *Log) OnBuildStart(e BuildStart) {
	subject := fmt.Sprintf("%s %s", e.Package, e.Version)
	l.remember(e.Handle, "build", subject)
	l.Logger.Printf("building %s (%s)", subject, e.Hook)
}

func (l *Log) OnBuildComplete(e BuildComplete) {
	info := l.forget(e.Handle)
	if e.Err != nil {
		l.Logger.Printf("build failed for %s: %v", info.subject, e.Err)
		return
	}
	l.Logger.Printf("built %s in %s", info.subject, e.Took)
}

func (l *Log) OnCheckoutStart(e CheckoutStart) {
	l.remember(e.Handle, "checkout", e.Package)
	l.Logger.Printf("checking out %s@%s", e.URL, e.Reference)
}

func (l *Log) OnCheckoutComplete(e CheckoutComplete) {
	info := l.forget(e.Handle)
	if e.Err != nil {
		l.Logger.Printf("checkout failed for %s: %v", info.subject, e.Err)
		return
	}
	l.Logger.Printf("checked out %s at %s in %s", info.subject, e.PreciseOID, e.Took)
}

var _ Reporter = (*Log)(nil)
