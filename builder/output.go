package builder

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"github.com/puglite/puglite/config"
	"github.com/puglite/puglite/pkg/puglite/runtime"
)

var htmlMinifier = func() *minify.M {
	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepDefaultAttrVals: true,
	})
	return m
}()

func minifyHTML(s string) (string, error) {
	return htmlMinifier.String("text/html", s)
}

func outputExt(format string) string {
	switch format {
	case "esm":
		return ".js"
	case "cjs":
		return ".cjs"
	default:
		return ".html"
	}
}

// wrap turns rendered html into the file body for format. Modules export
// the markup as a string.
func wrap(html, format string) string {
	switch format {
	case "esm":
		return "export default " + runtime.Quote(html) + ";\n"
	case "cjs":
		return "module.exports = " + runtime.Quote(html) + ";\n"
	default:
		return html
	}
}

// writeOutputs writes data to path plus any precompressed siblings.
func writeOutputs(path string, data []byte, cfg config.BuildConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return err
	}

	if cfg.HasPrecompress("gzip") {
		gz, err := gzipBytes(data)
		if err != nil {
			return fmt.Errorf("gzip %s: %w", path, err)
		}
		if err := os.WriteFile(path+".gz", gz, 0644); err != nil {
			return err
		}
	}
	if cfg.HasPrecompress("br") {
		br, err := brotliBytes(data)
		if err != nil {
			return fmt.Errorf("brotli %s: %w", path, err)
		}
		if err := os.WriteFile(path+".br", br, 0644); err != nil {
			return err
		}
	}
	return nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func brotliBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.BestCompression)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
