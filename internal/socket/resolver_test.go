package socket

import "testing"

// TestResolveHandle exercises handle extraction as a pure string
// operation, independent of any live socket.
func TestResolveHandle(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"simple handle", "/terminal/abcd/", "abcd"},
		{"uuid handle", "/terminal/2b51f35e-84a3-4cfa-a464-69b9ba3f6e2b/", "2b51f35e-84a3-4cfa-a464-69b9ba3f6e2b"},
		{"nested prefix", "/proxy/8080/terminal/abcd/", "abcd"},
		{"missing trailing slash", "/terminal/abcd", ""},
		{"root only", "/", ""},
		{"empty segment", "/terminal//", ""},
		{"empty path", "", ""},
		{"no slash at all", "abcd/", ""},
		{"bare slashes", "//", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveHandle(tt.path); got != tt.want {
				t.Errorf("ResolveHandle(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
