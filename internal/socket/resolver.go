package socket

import "strings"

// ResolveHandle extracts the terminal handle from a connection's request
// path. The expected form is .../terminal/<handle>/ with a mandatory
// trailing slash; the handle is the last non-empty path segment. Returns
// the empty string when the path does not carry a handle.
func ResolveHandle(path string) string {
	if path == "" || !strings.HasSuffix(path, "/") {
		return ""
	}

	trimmed := strings.TrimSuffix(path, "/")
	i := strings.LastIndex(trimmed, "/")
	if i < 0 || i == len(trimmed)-1 {
		return ""
	}
	return trimmed[i+1:]
}
