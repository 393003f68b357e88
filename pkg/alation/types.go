package alation

// Folder is a folder record as returned by the folder endpoint. Folders form
// a tree through ParentFolderID; a nil parent marks a top-level folder.
type Folder struct {
	ID             int64  `json:"id" yaml:"id"`
	Title          string `json:"title" yaml:"title"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty"`
	DocumentHubID  int64  `json:"document_hub_id" yaml:"document_hub_id"`
	ParentFolderID *int64 `json:"parent_folder_id" yaml:"parent_folder_id"`
	TemplateID     *int64 `json:"template_id,omitempty" yaml:"template_id,omitempty"`
}

// DocumentHub is a top-level container of folders.
type DocumentHub struct {
	ID          int64   `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	TemplateIDs []int64 `json:"template_ids,omitempty" yaml:"template_ids,omitempty"`
}

// Template is a custom template and the fields it defines.
type Template struct {
	ID     int64   `json:"id" yaml:"id"`
	Title  string  `json:"title" yaml:"title"`
	Fields []Field `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// Field is one custom field of a template.
type Field struct {
	ID            int64    `json:"id" yaml:"id"`
	NameSingular  string   `json:"name_singular" yaml:"name_singular"`
	NamePlural    string   `json:"name_plural,omitempty" yaml:"name_plural,omitempty"`
	FieldType     string   `json:"field_type" yaml:"field_type"`
	Options       []string `json:"options,omitempty" yaml:"options,omitempty"`
	AllowMultiple bool     `json:"allow_multiple,omitempty" yaml:"allow_multiple,omitempty"`
	TooltipText   string   `json:"tooltip_text,omitempty" yaml:"tooltip_text,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	UserID       int64  `json:"user_id"`
}

type refreshResponse struct {
	APIAccessToken string `json:"api_access_token"`
	UserID         int64  `json:"user_id,omitempty"`
	TokenStatus    string `json:"token_status,omitempty"`
}
