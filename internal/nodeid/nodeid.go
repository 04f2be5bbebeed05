package nodeid

import (
	"fmt"
	"regexp"
	"strings"
)

// Separator joins the namespace chain to the local node name.
const Separator = "."

// segmentRegex validates a single segment of an id path.
var segmentRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks that rawID is a well-formed dot-separated id path.
func Validate(rawID string) error {
	if rawID == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	for _, segment := range strings.Split(rawID, Separator) {
		if segment == "" {
			return fmt.Errorf("identifier %q contains empty segment", rawID)
		}
		if !segmentRegex.MatchString(segment) {
			return fmt.Errorf("invalid path segment format: %q", segment)
		}
	}

	return nil
}

// ValidateLocal checks a patch-local node name. Local names are single
// segments; the separator is reserved for namespacing at expansion time.
func ValidateLocal(name string) error {
	if name == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if !segmentRegex.MatchString(name) {
		return fmt.Errorf("invalid node name %q: must match %s", name, segmentRegex.String())
	}
	return nil
}

// Namespace prefixes a local id with its parent id. An empty parent returns
// the local id unchanged, so top-level nodes keep their patch names.
func Namespace(parentID, localID string) string {
	if parentID == "" {
		return localID
	}
	return parentID + Separator + localID
}

// ParentOf returns the enclosing namespace of an id, or "" for a top-level id.
func ParentOf(id string) string {
	idx := strings.LastIndex(id, Separator)
	if idx < 0 {
		return ""
	}
	return id[:idx]
}

// LocalOf returns the final segment of an id.
func LocalOf(id string) string {
	idx := strings.LastIndex(id, Separator)
	if idx < 0 {
		return id
	}
	return id[idx+1:]
}

// IsWithin reports whether id lives inside the namespace rooted at parentID.
// An id is not considered to be within itself.
func IsWithin(id, parentID string) bool {
	return strings.HasPrefix(id, parentID+Separator)
}
