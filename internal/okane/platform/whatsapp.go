package platform

import (
	"fmt"
	"io/fs"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okanebot/okane/internal/okane/envelope"
)

// metadataPrefix marks envelope template parameters that are internal
// metadata, not template slot values.
const metadataPrefix = "_"

// Template is one pre-approved WhatsApp message template.
type Template struct {
	// Name must match the template name registered with the WhatsApp
	// Business account.
	Name string `yaml:"name"`

	// Language is the template's language code, e.g. "en" or "en_US".
	Language string `yaml:"language"`

	// Params lists the template's slot names in positional order.
	Params []string `yaml:"params"`
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// TemplateRegistry is the set of pre-approved WhatsApp templates, loaded
// once at startup and read-only afterwards.
type TemplateRegistry struct {
	byName map[string]Template
}

// LoadTemplates reads a templates.yaml from the filesystem root.
func LoadTemplates(root fs.FS, path string) (*TemplateRegistry, error) {
	raw, err := fs.ReadFile(root, path)
	if err != nil {
		return nil, fmt.Errorf("templates %q: %w", path, err)
	}
	return ParseTemplates(raw)
}

// ParseTemplates decodes a template registry from YAML.
func ParseTemplates(raw []byte) (*TemplateRegistry, error) {
	var file templateFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("templates: parse yaml: %w", err)
	}

	byName := make(map[string]Template, len(file.Templates))
	for _, tmpl := range file.Templates {
		if tmpl.Name == "" {
			return nil, fmt.Errorf("templates: entry with empty name")
		}
		if _, dup := byName[tmpl.Name]; dup {
			return nil, fmt.Errorf("templates: duplicate template %q", tmpl.Name)
		}
		byName[tmpl.Name] = tmpl
	}
	return &TemplateRegistry{byName: byName}, nil
}

// Get returns the named template.
func (r *TemplateRegistry) Get(name string) (Template, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Contains reports whether name is a registered template.
func (r *TemplateRegistry) Contains(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// WhatsAppFormatter renders envelopes for the WhatsApp Cloud API, applying
// the template fallback policy: only registered templates whose slots can
// all be filled go out as template messages, everything else is plain text.
type WhatsAppFormatter struct {
	templates *TemplateRegistry
}

func NewWhatsAppFormatter(templates *TemplateRegistry) *WhatsAppFormatter {
	return &WhatsAppFormatter{templates: templates}
}

func (f *WhatsAppFormatter) Platform() string { return "whatsapp" }

func (f *WhatsAppFormatter) Approves(name string) bool {
	return f.templates != nil && f.templates.Contains(name)
}

// Format maps a normalized envelope to an outbound WhatsApp message. An
// image wins over both template and text: chart replies are always sent as
// media messages.
func (f *WhatsAppFormatter) Format(reply envelope.Reply) Outbound {
	if reply.ImageURL != "" {
		return Outbound{
			Kind:     KindImage,
			ImageURL: reply.ImageURL,
			Caption:  captionOf(reply),
		}
	}

	if reply.Format == envelope.FormatTemplate {
		if out, ok := f.templateMessage(reply); ok {
			return out
		}
	}
	return Outbound{Kind: KindText, Text: reply.Content}
}

// templateMessage builds a positional template message. It reports false
// when a slot value is missing, which sends the reply as text instead of a
// malformed template.
func (f *WhatsAppFormatter) templateMessage(reply envelope.Reply) (Outbound, bool) {
	tmpl, ok := f.templates.Get(reply.TemplateName)
	if !ok {
		return Outbound{}, false
	}

	params := make([]string, 0, len(tmpl.Params))
	for _, slot := range tmpl.Params {
		if strings.HasPrefix(slot, metadataPrefix) {
			continue
		}
		value, ok := reply.TemplateParams[slot]
		if !ok {
			return Outbound{}, false
		}
		params = append(params, value)
	}

	return Outbound{
		Kind:           KindTemplate,
		TemplateName:   tmpl.Name,
		TemplateParams: params,
	}, true
}
