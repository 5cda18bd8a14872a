package kernel

import "strings"

// Normalizer confines every guest-visible path to a fixed root prefix.
// Guests never see the prefix: cwd handed back to a guest has it
// stripped, so guest code sees "/" as its own world root.
type Normalizer struct {
	root string // immutable real root prefix, e.g. "/persistent"
}

// NewNormalizer constructs a Normalizer rooted at root. root is cleaned
// and must not end in "/".
func NewNormalizer(root string) *Normalizer {
	root = strings.TrimRight(root, "/")
	if root == "" {
		root = "/persistent"
	}
	return &Normalizer{root: root}
}

// Root returns the confined real root prefix.
func (n *Normalizer) Root() string { return n.root }

// Resolve normalizes a guest path (possibly relative to cwd, itself an
// already-confined real path) into a confined real path beginning with
// the root prefix. Popping ".." past the root is silently absorbed.
//
// cwd is a real, already-confined path (as stored on a Process record);
// guestPath is relative to it unless it starts with "/", in which case
// it is interpreted relative to the guest's own root (which is n.root,
// not "/" on the host).
func (n *Normalizer) Resolve(guestPath, cwd string) string {
	var input string
	if strings.HasPrefix(guestPath, "/") {
		input = guestPath
	} else {
		input = n.Strip(cwd) + "/" + guestPath
	}

	stack := make([]string, 0, 8)
	for _, part := range strings.Split(input, "/") {
		switch part {
		case "", ".":
			// dropped
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}

	if len(stack) == 0 {
		return n.root
	}
	return n.root + "/" + strings.Join(stack, "/")
}

// Strip removes the root prefix from a confined real path, returning the
// guest-visible view (with "/" as the guest's own root).
func (n *Normalizer) Strip(realPath string) string {
	rel := strings.TrimPrefix(realPath, n.root)
	if rel == "" {
		return "/"
	}
	return rel
}

// NewCwd resolves and returns a confined real cwd for chdir(path).
func (n *Normalizer) NewCwd(guestPath, cwd string) string {
	return n.Resolve(guestPath, cwd)
}
