package document

import (
	"net/url"
	"path"
	"strings"
)

// ResolvePath resolves an image reference found in the document at docPath
// to a path relative to the container root. References with a scheme
// (http:, data:) are returned unchanged; query and fragment are dropped.
func ResolvePath(docPath, ref string) string {
	if ref == "" {
		return ""
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}

	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}

	var resolved string
	if strings.HasPrefix(ref, "/") {
		resolved = path.Clean(ref)
	} else {
		resolved = path.Join(path.Dir(docPath), ref)
	}

	resolved = strings.TrimPrefix(resolved, "/")
	for strings.HasPrefix(resolved, "../") {
		resolved = strings.TrimPrefix(resolved, "../")
	}
	return resolved
}
