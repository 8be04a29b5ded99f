package auth

import "strings"

// RequiredPermission derives the permission a request path requires,
// per the §4.7 table. ok is false for anything else, which the
// middleware must reject with 404 rather than 401.
func RequiredPermission(path string) (perm Permission, ok bool) {
	switch {
	case strings.HasPrefix(path, "/auth"):
		return PermModifyAuth, true
	case path == "/indexes":
		return PermModifyEngine, true
	case strings.HasPrefix(path, "/indexes/") && strings.HasSuffix(path, "/search"):
		return PermSearchIndex, true
	case strings.HasPrefix(path, "/indexes/") && strings.HasSuffix(path, "/stopwords"):
		return PermModifyStopWords, true
	case strings.HasPrefix(path, "/indexes/"):
		return PermModifyDocuments, true
	default:
		return 0, false
	}
}
