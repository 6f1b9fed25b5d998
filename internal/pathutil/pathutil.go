// Package pathutil converts between API-style paths and the db-style paths
// stored in the directories, files and remote_checkpoints tables.
//
// API-style paths are relative to the user's root and carry no leading or
// trailing slash: "", "foo", "foo/bar.ipynb". Db-style directory names carry
// both ("/foo/bar/", root is "/"); db-style file paths carry only the
// leading slash ("/foo/bar.ipynb").
package pathutil

import (
	"fmt"
	"path"
	"strings"

	"github.com/quantopian/pgcontents/internal/domain"
)

// NormalizeAPIPath resolves "." and ".." segments in an API path. Paths that
// escape the root after resolution return domain.ErrPathOutsideRoot.
func NormalizeAPIPath(apiPath string) (string, error) {
	normalized := path.Clean(strings.Trim(apiPath, "/"))
	if normalized == "." {
		normalized = ""
	} else if normalized == ".." || strings.HasPrefix(normalized, "../") {
		return "", fmt.Errorf("%s: %w", normalized, domain.ErrPathOutsideRoot)
	}
	return normalized, nil
}

// FromAPIDirname converts an API directory path to db style.
func FromAPIDirname(apiDirname string) string {
	if apiDirname == "" {
		return "/"
	}
	var b strings.Builder
	if !strings.HasPrefix(apiDirname, "/") {
		b.WriteByte('/')
	}
	b.WriteString(apiDirname)
	if !strings.HasSuffix(apiDirname, "/") {
		b.WriteByte('/')
	}
	return b.String()
}

// FromAPIFilename converts an API file path to db style.
func FromAPIFilename(apiPath string) string {
	return "/" + apiPath
}

// ToAPIPath converts a db-style path back to API style.
func ToAPIPath(dbPath string) string {
	return strings.Trim(dbPath, "/")
}

// SplitAPIFilepath splits an API file path into a db-style directory name
// and a bare file name. "foo/bar/baz.ipynb" becomes ("/foo/bar/", "baz.ipynb").
func SplitAPIFilepath(apiPath string) (dbDirname, name string) {
	idx := strings.LastIndex(apiPath, "/")
	if idx < 0 {
		return "/", apiPath
	}
	return FromAPIDirname(apiPath[:idx+1]), apiPath[idx+1:]
}

// ParentDBDirname returns the db-style name of a db-style directory's
// parent. The root directory has no parent and returns "".
func ParentDBDirname(dbDirname string) string {
	if dbDirname == "/" {
		return ""
	}
	trimmed := strings.TrimSuffix(dbDirname, "/")
	return trimmed[:strings.LastIndex(trimmed, "/")+1]
}

// PrefixDirnames returns every db-style directory name on the way from the
// root to dbDirname, root first and dbDirname last.
func PrefixDirnames(dbDirname string) []string {
	prefixes := []string{"/"}
	if dbDirname == "/" {
		return prefixes
	}
	segments := strings.Split(strings.Trim(dbDirname, "/"), "/")
	current := "/"
	for _, seg := range segments {
		current += seg + "/"
		prefixes = append(prefixes, current)
	}
	return prefixes
}

// IsRoot reports whether an API path names the user's root directory.
func IsRoot(apiPath string) bool {
	return strings.Trim(apiPath, "/") == ""
}
