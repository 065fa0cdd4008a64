package proxy

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/northbound/edgeproxy/proxyerr"
)

const (
	grpcContentType        = "application/grpc"
	grpcWebContentType     = "application/grpc-web"
	grpcWebTextContentType = "application/grpc-web-text"
)

// isGRPCRequest reports whether req declares a gRPC content type.
func isGRPCRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, grpcContentType)
}

// isGRPCWebRequest reports whether req declares a gRPC-Web content type.
func isGRPCWebRequest(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, grpcWebContentType) || strings.HasPrefix(ct, grpcWebTextContentType)
}

// grpcPercentEncode escapes message for the grpc-message trailer/header:
// every byte other than an ASCII letter, digit or one of "-_.~" is
// percent-encoded, space included (as %20).
func grpcPercentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, c := range s {
		switch {
		case c == '%':
			b.WriteString("%25")
		case c == ' ':
			b.WriteString("%20")
		case c == '\n':
			b.WriteString("%0A")
		case c == '\r':
			b.WriteString("%0D")
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || strings.ContainsRune("-_.~", c):
			b.WriteRune(c)
		default:
			for _, bt := range []byte(string(c)) {
				fmt.Fprintf(&b, "%%%02X", bt)
			}
		}
	}
	return b.String()
}

// writeGRPCError writes a gateway-synthesized gRPC error: HTTP 200 with
// grpc-status/grpc-message headers and an empty body, the Trailers-Only
// response shape gRPC clients expect from a proxy that never reached a
// real gRPC server.
func writeGRPCError(w http.ResponseWriter, kind proxyerr.Kind, message string) {
	status := proxyerr.GrpcStatusForKind(kind)
	w.Header().Set("Content-Type", grpcContentType)
	w.Header().Set("grpc-status", fmt.Sprintf("%d", int(status)))
	w.Header().Set("grpc-message", grpcPercentEncode(message))
	w.WriteHeader(http.StatusOK)
}
