// Package vfs builds a directory tree over a flat list of archive entry
// names. Nodes live in a single arena slice addressed by integer id rather
// than through owning pointers, so a node's parent and children are plain
// ids: detaching a subtree never needs to walk it, and re-attaching a node
// elsewhere is a constant-time slice edit instead of a pointer rewrite.
package vfs

import (
	"strings"

	"github.com/zipline/zipline"
)

// RootID is the id of the tree's root node, always present.
const RootID = 0

// Node is one arena slot: a name relative to its parent, a parent id (-1
// for the root), an ordered list of child ids, and, for leaf nodes, the
// archive entry it represents.
type Node struct {
	Name     string
	Parent   int
	Children []int
	Entry    *zipline.Entry // nil for directories and the root
}

// Tree is an arena of Nodes. The zero value is not usable; use New.
type Tree struct {
	nodes []*Node
}

// New returns a Tree containing only the root directory node.
func New() *Tree {
	return &Tree{nodes: []*Node{{Name: "", Parent: -1}}}
}

// Node returns the node at id, or nil if id is out of range or was
// detached (its slot is set to nil, not reused).
func (t *Tree) Node(id int) *Node {
	if id < 0 || id >= len(t.nodes) {
		return nil
	}
	return t.nodes[id]
}

// Insert creates a new child named name under parentID and returns its id.
// It does not check for a same-named sibling; callers that build a path
// hierarchy (FromEntries) are responsible for memoizing directory nodes
// themselves.
func (t *Tree) Insert(parentID int, name string) int {
	id := len(t.nodes)
	t.nodes = append(t.nodes, &Node{Name: name, Parent: parentID})
	if parent := t.Node(parentID); parent != nil {
		parent.Children = append(parent.Children, id)
	}
	return id
}

// Detach removes id from its parent's child list and clears its slot. It
// does not recurse: any children id had remain in the arena, addressable
// by id, but are no longer reachable by walking from the root.
func (t *Tree) Detach(id int) {
	node := t.Node(id)
	if node == nil {
		return
	}
	if parent := t.Node(node.Parent); parent != nil {
		for i, childID := range parent.Children {
			if childID == id {
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
				break
			}
		}
	}
	t.nodes[id] = nil
}

// Walk visits id and every reachable descendant in depth-first, children-
// in-insertion-order, fashion. fn returning false skips id's children
// (but walking continues with id's remaining siblings via the caller's
// own recursion, matching a standard filesystem-walk early-prune contract).
func (t *Tree) Walk(id int, fn func(id int, node *Node) bool) {
	node := t.Node(id)
	if node == nil {
		return
	}
	if !fn(id, node) {
		return
	}
	for _, childID := range node.Children {
		t.Walk(childID, fn)
	}
}

// Lookup resolves a "/"-separated path from id, returning the id of the
// named descendant, or -1 if any component is missing.
func (t *Tree) Lookup(id int, path string) int {
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		node := t.Node(id)
		if node == nil {
			return -1
		}
		found := -1
		for _, childID := range node.Children {
			if child := t.Node(childID); child != nil && child.Name == part {
				found = childID
				break
			}
		}
		if found < 0 {
			return -1
		}
		id = found
	}
	return id
}

// FromEntries builds a Tree from entries' names, splitting each on "/".
// Intermediate path components become directory nodes (created once, on
// first reference, in whatever order entries are visited); the final
// component of a non-directory entry becomes a leaf node carrying the
// entry itself.
func FromEntries(entries []*zipline.Entry) *Tree {
	t := New()
	dirs := map[string]int{"": RootID}

	ensureDir := func(path string) int {
		if id, ok := dirs[path]; ok {
			return id
		}
		parent := RootID
		if i := strings.LastIndex(path, "/"); i >= 0 {
			parent = ensureDirRec(t, dirs, path[:i])
		}
		name := path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			name = path[i+1:]
		}
		id := t.Insert(parent, name)
		dirs[path] = id
		return id
	}

	for _, e := range entries {
		name := strings.TrimSuffix(e.Name, "/")
		if e.Directory {
			ensureDir(name)
			continue
		}
		parent := RootID
		leafName := name
		if i := strings.LastIndex(name, "/"); i >= 0 {
			parent = ensureDir(name[:i])
			leafName = name[i+1:]
		}
		id := t.Insert(parent, leafName)
		t.Node(id).Entry = e
	}
	return t
}

// ensureDirRec mirrors ensureDir's memoization for the recursive parent-
// directory lookup inside FromEntries, since Go closures can't easily
// recurse into themselves by name.
func ensureDirRec(t *Tree, dirs map[string]int, path string) int {
	if id, ok := dirs[path]; ok {
		return id
	}
	parent := RootID
	name := path
	if i := strings.LastIndex(path, "/"); i >= 0 {
		parent = ensureDirRec(t, dirs, path[:i])
		name = path[i+1:]
	}
	id := t.Insert(parent, name)
	dirs[path] = id
	return id
}
