package builder

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/puglite/puglite/cache"
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
)

// FileResult is the outcome of building one template.
type FileResult struct {
	Path   string // Template path
	Rel    string // Path relative to the build root
	Out    string // Output path
	Size   int    // Bytes written, before precompression
	Cached bool   // Output came from the compile cache
	Err    error
}

// Report summarises a build.
type Report struct {
	Files    []FileResult
	Duration time.Duration
	Cache    cache.Stats
}

// Failed returns the results that carry an error.
func (r *Report) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// OK reports whether every template built.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0
}

// TotalBytes sums the output sizes of successful files.
func (r *Report) TotalBytes() uint64 {
	var n uint64
	for _, f := range r.Files {
		if f.Err == nil {
			n += uint64(f.Size)
		}
	}
	return n
}

// Summary returns a one-line description such as
// "12 templates, 1 failed, 48 kB in 35ms (9 cached)".
func (r *Report) Summary() string {
	built := 0
	cached := 0
	for _, f := range r.Files {
		if f.Err == nil {
			built++
			if f.Cached {
				cached++
			}
		}
	}
	s := fmt.Sprintf("%s templates", humanize.Comma(int64(built)))
	if failed := len(r.Failed()); failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	s += fmt.Sprintf(", %s in %s", humanize.Bytes(r.TotalBytes()), r.Duration.Round(time.Millisecond))
	if cached > 0 {
		s += fmt.Sprintf(" (%d cached)", cached)
	}
	return s
}

// Print writes each failure with its source excerpt, then the summary.
func (r *Report) Print(w io.Writer) {
	for _, f := range r.Failed() {
		var pe *perrors.PugliteError
		if errors.As(f.Err, &pe) {
			fmt.Fprintln(w, pe.PrettyString())
		} else {
			fmt.Fprintf(w, "%s: %v\n", f.Rel, f.Err)
		}
	}
	fmt.Fprintln(w, r.Summary())
}
