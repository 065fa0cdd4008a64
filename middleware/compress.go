package middleware

import (
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// CompressConfig configures response compression: select br over gzip by
// Accept-Encoding quality, per spec.md §4.11. Grounded on
// filters/builtin/compress.go's MIME allow-list and Accept-Encoding
// parsing, with klauspost/compress's gzip (rather than stdlib's) and
// andybalholm/brotli providing the two encoders.
type CompressConfig struct {
	Name  string
	MIME  []string
	Level int
}

var defaultCompressMIME = []string{
	"text/plain", "text/html", "application/json", "application/javascript",
	"text/javascript", "text/css", "image/svg+xml",
}

type compressMiddleware struct {
	name  string
	mime  map[string]bool
	level int
}

func NewCompress(cfg CompressConfig) Middleware {
	mimes := cfg.MIME
	if len(mimes) == 0 {
		mimes = defaultCompressMIME
	}
	set := make(map[string]bool, len(mimes))
	for _, m := range mimes {
		set[m] = true
	}
	level := cfg.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	return &compressMiddleware{name: cfg.Name, mime: set, level: level}
}

func (m *compressMiddleware) Name() string { return m.name }

func (m *compressMiddleware) Handle(w http.ResponseWriter, r *http.Request) (http.ResponseWriter, *http.Request, bool) {
	enc := m.acceptedEncoding(r.Header.Get("Accept-Encoding"))
	if enc == "" {
		return w, r, true
	}

	return &compressingWriter{ResponseWriter: w, mime: m.mime, enc: enc, level: m.level}, r, true
}

type weighted struct {
	name string
	q    float64
}

func (m *compressMiddleware) acceptedEncoding(header string) string {
	var candidates []weighted
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		name := strings.ToLower(strings.TrimSpace(fields[0]))
		if name != "br" && name != "gzip" {
			continue
		}
		q := 1.0
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if v, ok := strings.CutPrefix(f, "q="); ok {
				if parsed, err := strconv.ParseFloat(v, 64); err == nil {
					q = parsed
				}
			}
		}
		candidates = append(candidates, weighted{name, q})
	}
	if len(candidates) == 0 {
		return ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].q != candidates[j].q {
			return candidates[i].q > candidates[j].q
		}
		return candidates[i].name == "br"
	})
	return candidates[0].name
}

// compressingWriter defers picking up compression until the first write,
// since the Content-Type is only known once the handler sets it.
type compressingWriter struct {
	http.ResponseWriter
	mime    map[string]bool
	enc     string
	level   int
	decided bool
	active  io.WriteCloser
}

func (w *compressingWriter) WriteHeader(code int) {
	w.decide()
	w.ResponseWriter.WriteHeader(code)
}

func (w *compressingWriter) decide() {
	if w.decided {
		return
	}
	w.decided = true

	hdr := w.ResponseWriter.Header()
	if ce := hdr.Get("Content-Encoding"); ce != "" && ce != "identity" {
		return
	}
	ct := hdr.Get("Content-Type")
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if !w.mime[ct] {
		return
	}

	hdr.Del("Content-Length")
	hdr.Set("Content-Encoding", w.enc)
	hdr.Add("Vary", "Accept-Encoding")

	switch w.enc {
	case "br":
		w.active = brotli.NewWriterLevel(w.ResponseWriter, w.level)
	case "gzip":
		gw, _ := gzip.NewWriterLevel(w.ResponseWriter, w.level)
		w.active = gw
	}
}

func (w *compressingWriter) Write(b []byte) (int, error) {
	w.decide()
	if w.active == nil {
		return w.ResponseWriter.Write(b)
	}
	return w.active.Write(b)
}

// Close flushes and closes the active encoder. The forwarder detects
// that the writer returned from the pipeline implements io.Closer and
// defers a call to it for the lifetime of the request, so this runs once
// the backend response body has been fully copied.
func (w *compressingWriter) Close() error {
	if w.active != nil {
		return w.active.Close()
	}
	return nil
}
