package mphttp

import (
	"strings"

	"github.com/advdv/mphttp/internal/pattern"
)

type mounted struct {
	prefix string // no trailing slash
	sub    *Registry
}

// Mount mounts a sub registry on a path prefix. The mounted handlers receive requests with the mount
// prefix stripped from the path. Middleware registered via Use() sees the original path; the strip
// happens after middleware. Exact routes of this registry take precedence over the mount, wildcard
// routes only serve what the mount does not.
func (reg *Registry) Mount(prefix string, sub *Registry) {
	if sub == nil || sub == reg {
		panic("mphttp: invalid registry to mount on " + prefix)
	}

	pat, err := pattern.Parse(prefix)
	if err != nil {
		panic("mphttp: " + err.Error())
	}

	for _, seg := range pat.Segments() {
		if seg.Kind != pattern.Literal {
			panic("mphttp: mount prefix " + prefix + " must consist of literal segments")
		}
	}

	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		panic("mphttp: cannot mount on the root path")
	}

	for _, mnt := range reg.mounts {
		if mnt.prefix == prefix {
			panic("mphttp: a registry is already mounted on " + prefix)
		}
	}

	reg.middlewares.captured = true
	reg.mounts = append(reg.mounts, &mounted{prefix: prefix, sub: sub})
}

// strip returns the path below the mount prefix.
func (m *mounted) strip(path string) (string, bool) {
	switch {
	case path == m.prefix:
		return "/", true
	case strings.HasPrefix(path, m.prefix+"/"):
		return path[len(m.prefix):], true
	default:
		return "", false
	}
}

func (m *mounted) join(p string) string { return joinPath(m.prefix, p) }
