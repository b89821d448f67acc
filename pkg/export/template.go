package export

import (
	_ "embed"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/valyala/fasttemplate"
)

// Placeholder names recognised in a problem block template
const (
	TagProblemID     = "problem_id"
	TagProblemTitle  = "problem_title"
	TagOCRText       = "ocr_text"
	TagSVGPath       = "svg_path"
	TagCropImagePath = "crop_image_path"
	TagJobID         = "job_id"
	TagRegionType    = "region_type"
)

var knownTags = map[string]bool{
	TagProblemID:     true,
	TagProblemTitle:  true,
	TagOCRText:       true,
	TagSVGPath:       true,
	TagCropImagePath: true,
	TagJobID:         true,
	TagRegionType:    true,
}

//go:embed templates/problem_block_template.xml
var defaultTemplate string

// Template is a parsed problem block template. Rendering is a single pass
// over the source: substituted values are never scanned for placeholders.
type Template struct {
	tpl *fasttemplate.Template
}

// DefaultTemplate returns the built-in problem block template
func DefaultTemplate() *Template {
	t, err := ParseTemplate(defaultTemplate)
	if err != nil {
		panic(fmt.Sprintf("export: embedded template is invalid: %v", err))
	}
	return t
}

// LoadTemplate reads a template from path, or returns the built-in template
// when path is empty.
func LoadTemplate(path string) (*Template, error) {
	if path == "" {
		return DefaultTemplate(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	t, err := ParseTemplate(string(data))
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", path, err)
	}
	return t, nil
}

// ParseTemplate parses src and rejects any {{tag}} it does not know
func ParseTemplate(src string) (*Template, error) {
	tpl, err := fasttemplate.NewTemplate(src, "{{", "}}")
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	var unknown []string
	_, err = tpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		if !knownTags[tag] {
			unknown = append(unknown, tag)
		}
		return 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan template: %w", err)
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown template placeholders: %s", strings.Join(unknown, ", "))
	}
	return &Template{tpl: tpl}, nil
}

// Render substitutes values into the template. Values are XML-escaped;
// tags missing from values render empty.
func (t *Template) Render(values map[string]string) (string, error) {
	return t.tpl.ExecuteFuncStringWithErr(func(w io.Writer, tag string) (int, error) {
		var b strings.Builder
		if err := xml.EscapeText(&b, []byte(values[tag])); err != nil {
			return 0, err
		}
		return w.Write([]byte(b.String()))
	})
}
