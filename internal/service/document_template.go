package service

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

// DocumentTemplate lists the requirements provisioned for every new admission, optionally per grade.
type DocumentTemplate struct {
	Default []models.DocumentTemplateItem            `yaml:"default"`
	Grades  map[string][]models.DocumentTemplateItem `yaml:"grades"`
}

//go:embed templates/default.yaml
var defaultTemplateYAML []byte

// DefaultDocumentTemplate is used when no template file is configured. It
// panics if the embedded template is invalid.
func DefaultDocumentTemplate() *DocumentTemplate {
	tpl, err := ParseDocumentTemplate(bytes.NewReader(defaultTemplateYAML))
	if err != nil {
		panic(err)
	}
	return tpl
}

// LoadDocumentTemplate reads a YAML template from path. An empty path yields the built-in default.
func LoadDocumentTemplate(path string) (*DocumentTemplate, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultDocumentTemplate(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document template: %w", err)
	}
	defer f.Close()
	return ParseDocumentTemplate(f)
}

// ParseDocumentTemplate decodes and validates a YAML template.
func ParseDocumentTemplate(r io.Reader) (*DocumentTemplate, error) {
	var tpl DocumentTemplate
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&tpl); err != nil {
		return nil, fmt.Errorf("decode document template: %w", err)
	}
	if err := validateTemplateItems("default", tpl.Default); err != nil {
		return nil, err
	}
	for grade, items := range tpl.Grades {
		if err := validateTemplateItems("grade "+grade, items); err != nil {
			return nil, err
		}
	}
	return &tpl, nil
}

func validateTemplateItems(scope string, items []models.DocumentTemplateItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		name := strings.ToLower(strings.TrimSpace(item.Name))
		if name == "" {
			return errors.New("document template " + scope + ": requirement name is required")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("document template %s: duplicate requirement %q", scope, item.Name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ItemsFor returns the template for grade, falling back to the default list.
func (t *DocumentTemplate) ItemsFor(grade string) []models.DocumentTemplateItem {
	if t == nil {
		return nil
	}
	if items, ok := t.Grades[strings.TrimSpace(grade)]; ok {
		return items
	}
	return t.Default
}

// Requirements materialises fresh PENDING requirements for grade.
func (t *DocumentTemplate) Requirements(grade string, now time.Time) []models.DocumentRequirement {
	items := t.ItemsFor(grade)
	docs := make([]models.DocumentRequirement, 0, len(items))
	for _, item := range items {
		docs = append(docs, models.DocumentRequirement{
			ID:          uuid.NewString(),
			Name:        strings.TrimSpace(item.Name),
			IsMandatory: item.Mandatory,
			Status:      models.DocumentStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return docs
}
