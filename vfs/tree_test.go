package vfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zipline/zipline"
)

func TestTree_InsertAndLookup(t *testing.T) {
	t.Parallel()

	tr := New()
	dirID := tr.Insert(RootID, "docs")
	fileID := tr.Insert(dirID, "readme.txt")

	assert.Equal(t, fileID, tr.Lookup(RootID, "docs/readme.txt"))
	assert.Equal(t, dirID, tr.Lookup(RootID, "docs"))
	assert.Equal(t, -1, tr.Lookup(RootID, "docs/missing.txt"))
}

func TestTree_DetachRemovesFromParentChildList(t *testing.T) {
	t.Parallel()

	tr := New()
	dirID := tr.Insert(RootID, "docs")
	fileID := tr.Insert(dirID, "a.txt")

	tr.Detach(fileID)

	assert.Equal(t, -1, tr.Lookup(RootID, "docs/a.txt"))
	root := tr.Node(RootID)
	require.Len(t, root.Children, 1)
	assert.NotContains(t, tr.Node(dirID).Children, fileID)
}

func TestTree_WalkVisitsDepthFirst(t *testing.T) {
	t.Parallel()

	tr := New()
	dirID := tr.Insert(RootID, "docs")
	tr.Insert(dirID, "a.txt")
	tr.Insert(dirID, "b.txt")

	var names []string
	tr.Walk(RootID, func(id int, node *Node) bool {
		names = append(names, node.Name)
		return true
	})
	assert.Equal(t, []string{"", "docs", "a.txt", "b.txt"}, names)
}

func TestFromEntries_BuildsNestedDirectories(t *testing.T) {
	t.Parallel()

	entries := []*zipline.Entry{
		{Name: "a/b/c.txt"},
		{Name: "a/b/"},
		{Name: "a/d.txt"},
		{Name: "top.txt"},
	}
	for _, e := range entries {
		e.Directory = len(e.Name) > 0 && e.Name[len(e.Name)-1] == '/'
	}

	tr := FromEntries(entries)

	cID := tr.Lookup(RootID, "a/b/c.txt")
	require.NotEqual(t, -1, cID)
	assert.Equal(t, "a/b/c.txt", entries[0].Name)
	assert.Same(t, entries[0], tr.Node(cID).Entry)

	dID := tr.Lookup(RootID, "a/d.txt")
	require.NotEqual(t, -1, dID)
	assert.Same(t, entries[2], tr.Node(dID).Entry)

	topID := tr.Lookup(RootID, "top.txt")
	require.NotEqual(t, -1, topID)
	assert.Same(t, entries[3], tr.Node(topID).Entry)

	bID := tr.Lookup(RootID, "a/b")
	require.NotEqual(t, -1, bID)
	assert.Nil(t, tr.Node(bID).Entry, "directory nodes carry no entry")
}
