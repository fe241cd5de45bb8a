package catalog

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Resolver turns catalog media paths such as "/audio/x.mp3" into
// something an element can open: a file path under a local directory or
// an absolute URL under a base URL.
type Resolver struct {
	root string
	base *url.URL
}

// NewResolver creates a resolver for root, which is either a directory or
// an http(s) base URL. An empty root leaves paths untouched.
func NewResolver(root string) Resolver {
	if u, err := url.Parse(root); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		return Resolver{base: u}
	}
	return Resolver{root: root}
}

// Resolve maps p onto the resolver's root. Absolute URLs and empty paths
// are returned unchanged.
func (r Resolver) Resolve(p string) string {
	if p == "" || isAbsoluteURL(p) {
		return p
	}
	rel := strings.TrimPrefix(p, "/")
	if r.base != nil {
		ref, err := url.Parse(rel)
		if err != nil {
			return p
		}
		return r.base.ResolveReference(ref).String()
	}
	if r.root == "" {
		return p
	}
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
