package reporter

import (
	"bytes"
	"log"
	"strings"
	"testing"
	"time"
)

func newTestLog(verbose bool) (*Log, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewLog(log.New(&buf, "", 0), verbose), &buf
}

func TestLogDownloadLifecycleMentionsPackageAndURL(t *testing.T) {
	l, buf := newTestLog(false)
	l.OnDownloadStart(DownloadStart{Handle: 1, Package: "flask", Version: "1.0.0", URL: "https://example/flask-1.0.0.whl", TotalBytes: 100})
	l.OnDownloadComplete(DownloadComplete{Handle: 1, Took: 5 * time.Millisecond})

	out := buf.String()
	if !strings.Contains(out, "flask 1.0.0") || !strings.Contains(out, "example/flask") {
		t.Errorf("log output = %q, want package and URL mentioned", out)
	}
	if !strings.Contains(out, "downloaded flask 1.0.0") {
		t.Errorf("log output = %q, want a completion line", out)
	}
}

func TestLogDownloadProgressSuppressedUnlessVerbose(t *testing.T) {
	l, buf := newTestLog(false)
	l.OnDownloadStart(DownloadStart{Handle: 1, Package: "a", Version: "1"})
	l.OnDownloadProgress(DownloadProgress{Handle: 1, BytesSoFar: 50})
	if strings.Contains(buf.String(), "50 bytes") {
		t.Error("progress line should be suppressed when not verbose")
	}

	lv, bufv := newTestLog(true)
	lv.OnDownloadStart(DownloadStart{Handle: 1, Package: "a", Version: "1"})
	lv.OnDownloadProgress(DownloadProgress{Handle: 1, BytesSoFar: 50})
	if !strings.Contains(bufv.String(), "50 bytes") {
		t.Error("progress line should appear when verbose")
	}
}

func TestLogReportsErrorsOnFailure(t *testing.T) {
	l, buf := newTestLog(false)
	l.OnBuildStart(BuildStart{Handle: 2, Package: "cffi", Version: "1.0.0", Hook: "build_wheel"})
	l.OnBuildComplete(BuildComplete{Handle: 2, Err: errBoom})
	if !strings.Contains(buf.String(), "build failed for cffi 1.0.0") {
		t.Errorf("log output = %q, want a failure line naming the package", buf.String())
	}
}

func TestLogHandlesForgottenAfterComplete(t *testing.T) {
	l, _ := newTestLog(false)
	l.OnCheckoutStart(CheckoutStart{Handle: 3, Package: "tqdm", URL: "https://github.com/tqdm/tqdm", Reference: "main"})
	l.OnCheckoutComplete(CheckoutComplete{Handle: 3, PreciseOID: "abc123"})
	if _, ok := l.handles[3]; ok {
		t.Error("handle should be forgotten after its Complete event")
	}
}

func TestNullReporterIsSafeToCallAndDoesNothing(t *testing.T) {
	var n Null
	n.OnDownloadStart(DownloadStart{})
	n.OnDownloadProgress(DownloadProgress{})
	n.OnDownloadComplete(DownloadComplete{})
	n.OnBuildStart(BuildStart{})
	n.OnBuildComplete(BuildComplete{})
	n.OnCheckoutStart(CheckoutStart{})
	n.OnCheckoutComplete(CheckoutComplete{})
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
