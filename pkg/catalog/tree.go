// Package catalog holds the in-memory view of the catalog: the folder tree of
// each document hub, the hub/template correlation and template schemas.
package catalog

import (
	"sort"
	"strings"

	"github.com/catalogtools/apt/pkg/alation"
)

// FolderNode is a folder with its children resolved.
type FolderNode struct {
	Folder   alation.Folder
	Children []*FolderNode
	Depth    int
}

// ID returns the folder id.
func (n *FolderNode) ID() int64 { return n.Folder.ID }

// Title returns the folder title.
func (n *FolderNode) Title() string { return n.Folder.Title }

// BuildFolderTree turns a flat parent-pointer list into a forest.
//
// Folders with no parent, a zero parent, or a parent missing from the list
// become roots. Siblings are ordered by case-insensitive title, then id.
// Duplicate ids keep the first record, and a folder already on the path
// from the root is never entered again, so cyclic input still terminates.
func BuildFolderTree(folders []alation.Folder) []*FolderNode {
	byID := make(map[int64]alation.Folder, len(folders))
	order := make([]int64, 0, len(folders))
	for _, f := range folders {
		if _, dup := byID[f.ID]; dup {
			continue
		}
		byID[f.ID] = f
		order = append(order, f.ID)
	}

	children := make(map[int64][]int64)
	var roots []int64
	for _, id := range order {
		f := byID[id]
		parent := parentOf(f)
		if _, ok := byID[parent]; parent == 0 || parent == f.ID || !ok {
			roots = append(roots, id)
			continue
		}
		children[parent] = append(children[parent], id)
	}

	onPath := make(map[int64]bool)
	placed := make(map[int64]bool)

	var build func(id int64, depth int) *FolderNode
	build = func(id int64, depth int) *FolderNode {
		onPath[id] = true
		placed[id] = true
		defer delete(onPath, id)

		node := &FolderNode{Folder: byID[id], Depth: depth}
		for _, child := range children[id] {
			if onPath[child] || placed[child] {
				continue
			}
			node.Children = append(node.Children, build(child, depth+1))
		}
		sortNodes(node.Children)
		return node
	}

	forest := make([]*FolderNode, 0, len(roots))
	for _, id := range roots {
		forest = append(forest, build(id, 0))
	}

	// Folders only reachable through a cycle have no root; surface the
	// first member of each cycle as a root.
	for _, id := range order {
		if !placed[id] {
			forest = append(forest, build(id, 0))
		}
	}

	sortNodes(forest)
	return forest
}

// Walk visits nodes depth-first in display order. Returning false from fn
// skips the node's children.
func Walk(nodes []*FolderNode, fn func(*FolderNode) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(n.Children, fn)
		}
	}
}

// Path returns the titles from the root down to the folder with the given
// id, or nil when the folder is not in the forest.
func Path(nodes []*FolderNode, id int64) []string {
	for _, n := range nodes {
		if n.Folder.ID == id {
			return []string{n.Folder.Title}
		}
		if sub := Path(n.Children, id); sub != nil {
			return append([]string{n.Folder.Title}, sub...)
		}
	}
	return nil
}

func parentOf(f alation.Folder) int64 {
	if f.ParentFolderID == nil {
		return 0
	}
	return *f.ParentFolderID
}

func sortNodes(nodes []*FolderNode) {
	sort.SliceStable(nodes, func(i, j int) bool {
		a, b := strings.ToLower(nodes[i].Folder.Title), strings.ToLower(nodes[j].Folder.Title)
		if a != b {
			return a < b
		}
		return nodes[i].Folder.ID < nodes[j].Folder.ID
	})
}
