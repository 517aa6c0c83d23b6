package server

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Precompiled regex for case-insensitive tag matching
var (
	bodyTagRe = regexp.MustCompile(`(?i)</body>`)
	htmlTagRe = regexp.MustCompile(`(?i)</html>`)
)

// liveReloadScript is injected into HTML responses
const liveReloadScript = `<script>
(function() {
  let lastSeq = -1;
  const pollInterval = 1000;

  async function checkForChanges() {
    try {
      const resp = await fetch('/__livereload');
      const data = await resp.json();
      if (lastSeq === -1) {
        lastSeq = data.seq;
      } else if (data.seq !== lastSeq) {
        location.reload();
      }
    } catch (e) {
      // Server might be restarting, retry
    }
    setTimeout(checkForChanges, pollInterval);
  }

  if (document.readyState === 'complete') {
    checkForChanges();
  } else {
    window.addEventListener('load', checkForChanges);
  }
})();
</script>`

// liveReloadHandler serves the live reload polling endpoint
type liveReloadHandler struct {
	seq func() uint64
}

func newLiveReloadHandler(seq func() uint64) *liveReloadHandler {
	return &liveReloadHandler{seq: seq}
}

func (h *liveReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	fmt.Fprintf(w, `{"seq":%d}`, h.seq())
}

// injectLiveReload wraps a handler to inject the live reload script into HTML responses
func injectLiveReload(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lrw := &liveReloadResponseWriter{ResponseWriter: w}
		next.ServeHTTP(lrw, r)
		lrw.flush()
	})
}

// liveReloadResponseWriter buffers HTML responses to inject the script
type liveReloadResponseWriter struct {
	http.ResponseWriter
	buffer      []byte
	statusCode  int
	wroteHeader bool
	isHTML      bool
	checked     bool
}

func (w *liveReloadResponseWriter) WriteHeader(code int) {
	w.statusCode = code
}

func (w *liveReloadResponseWriter) Write(b []byte) (int, error) {
	if !w.checked {
		w.checked = true
		w.isHTML = strings.Contains(w.Header().Get("Content-Type"), "text/html")
	}

	if w.isHTML {
		w.buffer = append(w.buffer, b...)
		return len(b), nil
	}

	w.writeHeader()
	return w.ResponseWriter.Write(b)
}

func (w *liveReloadResponseWriter) writeHeader() {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	if w.statusCode != 0 {
		w.ResponseWriter.WriteHeader(w.statusCode)
	}
}

func (w *liveReloadResponseWriter) flush() {
	if !w.isHTML {
		// Headers-only responses still need their status
		w.writeHeader()
		return
	}

	content := injectScript(w.buffer)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
	w.writeHeader()
	w.ResponseWriter.Write(content)
}

// injectScript inserts the live reload script before </body>, else before
// </html>, else at the end.
func injectScript(content []byte) []byte {
	loc := bodyTagRe.FindIndex(content)
	if loc == nil {
		loc = htmlTagRe.FindIndex(content)
	}
	if loc == nil {
		return append(content, liveReloadScript...)
	}

	idx := loc[0]
	out := make([]byte, 0, len(content)+len(liveReloadScript))
	out = append(out, content[:idx]...)
	out = append(out, liveReloadScript...)
	out = append(out, content[idx:]...)
	return out
}
