package catalog

import (
	"sort"
	"strings"
	"time"

	"github.com/catalogtools/apt/pkg/alation"
)

// Cache is an immutable snapshot of hubs, folders and templates with the
// lookups the session needs. Build a new Cache to replace the data.
type Cache struct {
	fetchedAt time.Time

	hubs      []alation.DocumentHub
	hubByID   map[int64]alation.DocumentHub
	folders   map[int64]alation.Folder
	templates map[int64]alation.Template

	hubFolders map[int64][]alation.Folder
	trees      map[int64][]*FolderNode
}

// NewCache indexes the given records. Folders whose hub is unknown are kept
// for lookups but belong to no tree.
func NewCache(hubs []alation.DocumentHub, folders []alation.Folder, templates []alation.Template, fetchedAt time.Time) *Cache {
	c := &Cache{
		fetchedAt:  fetchedAt,
		hubByID:    make(map[int64]alation.DocumentHub, len(hubs)),
		folders:    make(map[int64]alation.Folder, len(folders)),
		templates:  make(map[int64]alation.Template, len(templates)),
		hubFolders: make(map[int64][]alation.Folder),
		trees:      make(map[int64][]*FolderNode),
	}

	for _, h := range hubs {
		if _, dup := c.hubByID[h.ID]; dup {
			continue
		}
		c.hubByID[h.ID] = h
		c.hubs = append(c.hubs, h)
	}
	sort.SliceStable(c.hubs, func(i, j int) bool {
		a, b := strings.ToLower(c.hubs[i].Title), strings.ToLower(c.hubs[j].Title)
		if a != b {
			return a < b
		}
		return c.hubs[i].ID < c.hubs[j].ID
	})

	for _, f := range folders {
		if _, dup := c.folders[f.ID]; dup {
			continue
		}
		c.folders[f.ID] = f
		c.hubFolders[f.DocumentHubID] = append(c.hubFolders[f.DocumentHubID], f)
	}

	for _, t := range templates {
		c.templates[t.ID] = t
	}

	for hubID, fs := range c.hubFolders {
		c.trees[hubID] = BuildFolderTree(fs)
	}

	return c
}

// EmptyCache returns a cache with no data.
func EmptyCache() *Cache {
	return NewCache(nil, nil, nil, time.Time{})
}

// FetchedAt returns when the data was fetched.
func (c *Cache) FetchedAt() time.Time { return c.fetchedAt }

// Empty reports whether the cache holds no hubs.
func (c *Cache) Empty() bool { return len(c.hubs) == 0 }

// Hubs returns the hubs ordered by title.
func (c *Cache) Hubs() []alation.DocumentHub {
	out := make([]alation.DocumentHub, len(c.hubs))
	copy(out, c.hubs)
	return out
}

// Hub looks up a hub by id.
func (c *Cache) Hub(id int64) (alation.DocumentHub, bool) {
	h, ok := c.hubByID[id]
	return h, ok
}

// Folder looks up a folder by id.
func (c *Cache) Folder(id int64) (alation.Folder, bool) {
	f, ok := c.folders[id]
	return f, ok
}

// Template looks up a template by id.
func (c *Cache) Template(id int64) (alation.Template, bool) {
	t, ok := c.templates[id]
	return t, ok
}

// Folders returns every cached folder of a hub in fetch order.
func (c *Cache) Folders(hubID int64) []alation.Folder {
	src := c.hubFolders[hubID]
	out := make([]alation.Folder, len(src))
	copy(out, src)
	return out
}

// AllFolders returns every cached folder ordered by id.
func (c *Cache) AllFolders() []alation.Folder {
	out := make([]alation.Folder, 0, len(c.folders))
	for _, f := range c.folders {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Templates returns every cached template ordered by title.
func (c *Cache) Templates() []alation.Template {
	out := make([]alation.Template, 0, len(c.templates))
	for _, t := range c.templates {
		out = append(out, t)
	}
	sortTemplates(out)
	return out
}

// FolderTree returns the folder forest of a hub. The nodes are shared;
// callers must not modify them.
func (c *Cache) FolderTree(hubID int64) []*FolderNode {
	return c.trees[hubID]
}

// HubForFolder returns the hub a folder belongs to.
func (c *Cache) HubForFolder(folderID int64) (alation.DocumentHub, bool) {
	f, ok := c.folders[folderID]
	if !ok {
		return alation.DocumentHub{}, false
	}
	return c.Hub(f.DocumentHubID)
}

// TemplatesForFolder returns the templates that apply to a folder: the
// folder's own template first, then the templates of its hub. Duplicates
// and ids missing from the cache are dropped.
func (c *Cache) TemplatesForFolder(folderID int64) []alation.Template {
	f, ok := c.folders[folderID]
	if !ok {
		return nil
	}

	var ids []int64
	if f.TemplateID != nil {
		ids = append(ids, *f.TemplateID)
	}
	if h, ok := c.hubByID[f.DocumentHubID]; ok {
		ids = append(ids, h.TemplateIDs...)
	}

	seen := make(map[int64]bool, len(ids))
	var out []alation.Template
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := c.templates[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Counts reports the number of cached objects by kind.
func (c *Cache) Counts() (hubs, folders, templates int) {
	return len(c.hubs), len(c.folders), len(c.templates)
}

func sortTemplates(ts []alation.Template) {
	sort.SliceStable(ts, func(i, j int) bool {
		a, b := strings.ToLower(ts[i].Title), strings.ToLower(ts[j].Title)
		if a != b {
			return a < b
		}
		return ts[i].ID < ts[j].ID
	})
}
