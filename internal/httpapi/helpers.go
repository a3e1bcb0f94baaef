package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure emits the standard error envelope used across the API.
func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

// writeMessage emits the bare {"message": ...} shape used by the
// refresh endpoint, whose consumers key off message text alone.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return errors.New("invalid request body")
	}
	return nil
}

// PathMatcher answers whether a request path is covered by a set of
// configured paths. A configured path matches itself exactly or any
// path nested under it.
type PathMatcher struct {
	paths []string
}

func NewPathMatcher(paths []string) *PathMatcher {
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, strings.TrimSuffix(p, "/"))
	}
	return &PathMatcher{paths: cleaned}
}

func (m *PathMatcher) Matches(path string) bool {
	for _, p := range m.paths {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
