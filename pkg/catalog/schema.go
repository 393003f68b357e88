package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/catalogtools/apt/pkg/alation"
	"gopkg.in/yaml.v3"
)

// Format is an output format for a template schema.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatCSV      Format = "csv"
)

// Formats lists the supported schema formats.
var Formats = []Format{FormatText, FormatMarkdown, FormatJSON, FormatYAML, FormatCSV}

// ParseFormat validates a format name. An empty name means text.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatText, nil
	}
	for _, f := range Formats {
		if strings.EqualFold(string(f), s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want one of %s)", s, joinFormats())
}

// SchemaRow is one field of a template schema.
type SchemaRow struct {
	Name     string   `json:"name" yaml:"name"`
	Plural   string   `json:"plural,omitempty" yaml:"plural,omitempty"`
	Type     string   `json:"type" yaml:"type"`
	Multiple bool     `json:"multiple" yaml:"multiple"`
	Options  []string `json:"options,omitempty" yaml:"options,omitempty"`
	Tooltip  string   `json:"tooltip,omitempty" yaml:"tooltip,omitempty"`
}

// TemplateSchema is the printable field schema of a template.
type TemplateSchema struct {
	TemplateID int64       `json:"template_id" yaml:"template_id"`
	Template   string      `json:"template" yaml:"template"`
	Fields     []SchemaRow `json:"fields" yaml:"fields"`
}

// Schema extracts the field schema of a template, keeping field order.
func Schema(t alation.Template) TemplateSchema {
	s := TemplateSchema{
		TemplateID: t.ID,
		Template:   t.Title,
		Fields:     make([]SchemaRow, 0, len(t.Fields)),
	}
	for _, f := range t.Fields {
		typ := f.FieldType
		if typ == "" {
			typ = "UNKNOWN"
		}
		s.Fields = append(s.Fields, SchemaRow{
			Name:     f.NameSingular,
			Plural:   f.NamePlural,
			Type:     typ,
			Multiple: f.AllowMultiple,
			Options:  f.Options,
			Tooltip:  f.TooltipText,
		})
	}
	return s
}

// WriteSchema writes the schema of t to w in the given format.
func WriteSchema(w io.Writer, t alation.Template, format Format) error {
	s := Schema(t)
	switch format {
	case FormatText, "":
		return RenderText(w, s)
	case FormatMarkdown:
		_, err := io.WriteString(w, RenderMarkdown(s))
		return err
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return renderCSV(w, s)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

// RenderText prints the schema as an aligned table.
func RenderText(w io.Writer, s TemplateSchema) error {
	if _, err := fmt.Fprintf(w, "Template: %s (id %d)\n", s.Template, s.TemplateID); err != nil {
		return err
	}
	if len(s.Fields) == 0 {
		_, err := fmt.Fprintln(w, "(no fields)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tTYPE\tMULTIPLE\tOPTIONS")
	for _, r := range s.Fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, r.Type, yesNo(r.Multiple), strings.Join(r.Options, ", "))
	}
	return tw.Flush()
}

// RenderMarkdown renders the schema as a markdown table.
func RenderMarkdown(s TemplateSchema) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(s.Template))
	if len(s.Fields) == 0 {
		sb.WriteString("_This template has no fields._\n")
		return sb.String()
	}
	sb.WriteString("| Field | Type | Multiple | Options |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, r := range s.Fields {
		fmt.Fprintf(&sb, "| %s | `%s` | %s | %s |\n",
			escapeMarkdown(r.Name), r.Type, yesNo(r.Multiple), escapeMarkdown(strings.Join(r.Options, ", ")))
	}
	return sb.String()
}

func renderCSV(w io.Writer, s TemplateSchema) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"template_id", "template", "field", "plural", "type", "multiple", "options"}); err != nil {
		return err
	}
	id := strconv.FormatInt(s.TemplateID, 10)
	for _, r := range s.Fields {
		rec := []string{id, s.Template, r.Name, r.Plural, r.Type, strconv.FormatBool(r.Multiple), strings.Join(r.Options, "|")}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func escapeMarkdown(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func joinFormats() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
