package catalog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/catalogtools/apt/pkg/alation"
	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

func testCache() *Cache {
	hubs := []alation.DocumentHub{
		{ID: 20, Title: "engineering", TemplateIDs: []int64{100, 101, 999}},
		{ID: 10, Title: "Data Governance", TemplateIDs: []int64{101}},
	}
	folders := []alation.Folder{
		{ID: 1, Title: "Policies", DocumentHubID: 10},
		{ID: 2, Title: "Runbooks", DocumentHubID: 20},
		{ID: 3, Title: "Incidents", DocumentHubID: 20, ParentFolderID: ptr(2), TemplateID: ptr(101)},
		{ID: 4, Title: "Stray", DocumentHubID: 77},
	}
	templates := []alation.Template{
		{ID: 100, Title: "Runbook", Fields: []alation.Field{
			{ID: 1, NameSingular: "Owner", FieldType: "OBJECT_SET", AllowMultiple: true},
			{ID: 2, NameSingular: "Severity", FieldType: "PICKER", Options: []string{"Low", "High"}},
		}},
		{ID: 101, Title: "Incident Report"},
	}
	return NewCache(hubs, folders, templates, time.Unix(1700000000, 0))
}

func TestCacheHubsSortedAscending(t *testing.T) {
	c := testCache()

	var titles []string
	for _, h := range c.Hubs() {
		titles = append(titles, h.Title)
	}
	if diff := cmp.Diff([]string{"Data Governance", "engineering"}, titles); diff != "" {
		t.Errorf("hub order mismatch (-want +got):\n%s", diff)
	}

	hubs, folders, templates := c.Counts()
	if hubs != 2 || folders != 4 || templates != 2 {
		t.Errorf("unexpected counts: %d hubs, %d folders, %d templates", hubs, folders, templates)
	}
	if c.Empty() {
		t.Error("cache with hubs reported empty")
	}
	if !EmptyCache().Empty() {
		t.Error("EmptyCache is not empty")
	}
}

func TestCacheFolderTreePerHub(t *testing.T) {
	c := testCache()

	tree := c.FolderTree(20)
	if len(tree) != 1 || tree[0].Title() != "Runbooks" {
		t.Fatalf("unexpected tree for hub 20: %+v", shapeOf(tree))
	}
	if len(tree[0].Children) != 1 || tree[0].Children[0].Title() != "Incidents" {
		t.Errorf("expected Incidents under Runbooks: %+v", shapeOf(tree))
	}

	if got := c.FolderTree(404); len(got) != 0 {
		t.Errorf("unknown hub should have no tree, got %d nodes", len(got))
	}

	if h, ok := c.HubForFolder(3); !ok || h.ID != 20 {
		t.Errorf("HubForFolder(3) = %v, %v", h, ok)
	}
	if _, ok := c.HubForFolder(4); ok {
		t.Error("folder of unknown hub should not resolve a hub")
	}
}

func TestTemplatesForFolder(t *testing.T) {
	c := testCache()

	ids := func(ts []alation.Template) []int64 {
		var out []int64
		for _, t := range ts {
			out = append(out, t.ID)
		}
		return out
	}

	// own template first, hub templates after, duplicates and unknown ids dropped
	if diff := cmp.Diff([]int64{101, 100}, ids(c.TemplatesForFolder(3))); diff != "" {
		t.Errorf("folder 3 templates (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{100, 101}, ids(c.TemplatesForFolder(2))); diff != "" {
		t.Errorf("folder 2 templates (-want +got):\n%s", diff)
	}
	if got := c.TemplatesForFolder(4); len(got) != 0 {
		t.Errorf("folder of unknown hub: %v", ids(got))
	}
	if got := c.TemplatesForFolder(404); got != nil {
		t.Errorf("unknown folder: %v", ids(got))
	}
}

func TestWriteSchemaFormats(t *testing.T) {
	c := testCache()
	tmpl, _ := c.Template(100)

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSchema(&buf, tmpl, FormatText); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"Template: Runbook (id 100)", "FIELD", "Owner", "OBJECT_SET", "Low, High"} {
			if !strings.Contains(out, want) {
				t.Errorf("text output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("markdown", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSchema(&buf, tmpl, FormatMarkdown); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if !strings.Contains(buf.String(), "| Severity | `PICKER` | no | Low, High |") {
			t.Errorf("unexpected markdown:\n%s", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSchema(&buf, tmpl, FormatJSON); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		var s TemplateSchema
		if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
			t.Fatalf("invalid json: %v", err)
		}
		if s.TemplateID != 100 || len(s.Fields) != 2 || !s.Fields[0].Multiple {
			t.Errorf("unexpected schema: %+v", s)
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSchema(&buf, tmpl, FormatYAML); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		var s TemplateSchema
		if err := yaml.Unmarshal(buf.Bytes(), &s); err != nil {
			t.Fatalf("invalid yaml: %v", err)
		}
		if s.Template != "Runbook" || s.Fields[1].Type != "PICKER" {
			t.Errorf("unexpected schema: %+v", s)
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteSchema(&buf, tmpl, FormatCSV); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines", len(lines))
		}
		if lines[2] != "100,Runbook,Severity,,PICKER,false,Low|High" {
			t.Errorf("unexpected row: %q", lines[2])
		}
	})

	t.Run("empty template", func(t *testing.T) {
		empty, _ := c.Template(101)
		var buf bytes.Buffer
		if err := WriteSchema(&buf, empty, FormatText); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		if !strings.Contains(buf.String(), "(no fields)") {
			t.Errorf("unexpected output: %q", buf.String())
		}
	})
}

func TestParseFormatYAML(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatText {
		t.Errorf("ParseFormat(\"\") = %q, %v", f, err)
	}
	if f, err := ParseFormat("YAML"); err != nil || f != FormatYAML {
		t.Errorf("ParseFormat(YAML) = %q, %v", f, err)
	}
	if _, err := ParseFormat("xlsx"); err == nil {
		t.Error("expected error for unknown format")
	}
}
