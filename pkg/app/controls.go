package app

import (
	"github.com/catalogtools/apt/pkg/alation"
	"github.com/catalogtools/apt/pkg/catalog"
)

// Controls is the enablement state of every interactive control, derived
// from the session state.
type Controls struct {
	// RefetchEnabled is set once the access token was validated or refreshed.
	RefetchEnabled bool `json:"refetch_enabled"`

	// HubEnabled is set when a cache is loaded.
	HubEnabled bool `json:"hub_enabled"`

	// FolderTreeEnabled is set when a hub is selected.
	FolderTreeEnabled bool `json:"folder_tree_enabled"`

	// TemplateEnabled is set when the selected folder has at least one template.
	TemplateEnabled bool `json:"template_enabled"`

	// GenerateEnabled is set when both a folder and a template are selected.
	GenerateEnabled bool `json:"generate_enabled"`
}

// Selection holds the current selections. Zero means nothing is selected.
type Selection struct {
	HubID      int64 `json:"hub_id,omitempty"`
	FolderID   int64 `json:"folder_id,omitempty"`
	TemplateID int64 `json:"template_id,omitempty"`
}

// View is a consistent copy of what the front end renders.
type View struct {
	Controls      Controls
	Selection     Selection
	NeedsSettings bool
	Hubs          []alation.DocumentHub
	FolderTree    []*catalog.FolderNode
	Templates     []alation.Template
}

func deriveControls(tokenValid bool, cache *catalog.Cache, sel Selection, templates []alation.Template) Controls {
	return Controls{
		RefetchEnabled:    tokenValid,
		HubEnabled:        cache != nil && !cache.Empty(),
		FolderTreeEnabled: sel.HubID != 0,
		TemplateEnabled:   sel.FolderID != 0 && len(templates) > 0,
		GenerateEnabled:   sel.FolderID != 0 && sel.TemplateID != 0,
	}
}
