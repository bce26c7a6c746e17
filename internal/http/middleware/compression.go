package middleware

import (
	"net/http"
	"strings"
)

// SkipCompressionForStreams wraps a compression middleware so relay audio
// is never compressed. The relay serves already-encoded MP3, which gzip
// cannot shrink, and compression middleware buffers writes, which breaks
// the flush-per-chunk delivery the speakers depend on.
func SkipCompressionForStreams(compressionHandler func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		compressed := compressionHandler(next)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/stream/") {
				next.ServeHTTP(w, r)
				return
			}

			compressed.ServeHTTP(w, r)
		})
	}
}
