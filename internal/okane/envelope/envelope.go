// Package envelope defines the canonical reply shape produced by the
// second model round, before any platform-specific formatting.
//
// The model's output is advisory: parsing is forgiving (malformed output
// degrades to a plain-text reply) but the invariants are enforced here in
// code, whatever the prompt asked for.
package envelope

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Format selects how a reply is rendered on template-capable platforms.
type Format string

const (
	FormatText     Format = "text"
	FormatTemplate Format = "template"
)

// Params is a flat scalar parameter map.  Models emit numbers and booleans
// where template slots expect text, so every scalar coerces to a string on
// decode.
type Params map[string]string

// UnmarshalJSON accepts string, number, and boolean values and rejects
// nested structures.
func (p *Params) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Params, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		case nil:
			out[key] = ""
		default:
			return fmt.Errorf("template parameter %q is not a scalar", key)
		}
	}
	*p = out
	return nil
}

// Reply is the canonical platform-agnostic outbound reply.
type Reply struct {
	Format         Format `json:"format"`
	Content        string `json:"content"`
	TemplateName   string `json:"templateName,omitempty"`
	TemplateParams Params `json:"templateParams,omitempty"`
	ImageURL       string `json:"imageUrl,omitempty"`
	Caption        string `json:"caption,omitempty"`
}

// Text builds a plain-text reply.
func Text(content string) Reply {
	return Reply{Format: FormatText, Content: content}
}

// Parse decodes raw model output into a Reply.  It tolerates a fenced code
// block around the JSON document, which models add despite instructions.
func Parse(raw string) (Reply, error) {
	text := stripFence(strings.TrimSpace(raw))

	var reply Reply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		return Reply{}, fmt.Errorf("envelope: decode reply: %w", err)
	}
	if reply.Format != FormatText && reply.Format != FormatTemplate {
		return Reply{}, fmt.Errorf("envelope: unknown format %q", reply.Format)
	}
	if reply.Content == "" {
		return Reply{}, fmt.Errorf("envelope: reply has no content")
	}
	return reply, nil
}

// ParseOrText decodes raw model output, degrading to a plain-text reply
// wrapping the raw string when it is not a valid envelope.
func ParseOrText(raw string) Reply {
	reply, err := Parse(raw)
	if err != nil {
		return Text(strings.TrimSpace(raw))
	}
	return reply
}

// Normalize enforces the envelope invariants.  A template reply whose name
// is missing or not in the approved set becomes a text reply with the same
// content; the text fallback is why Content is always required.
func Normalize(reply Reply, approved func(name string) bool) Reply {
	if reply.Format == FormatTemplate {
		if reply.TemplateName == "" || approved == nil || !approved(reply.TemplateName) {
			reply.Format = FormatText
			reply.TemplateName = ""
			reply.TemplateParams = nil
		}
	}
	if reply.Format == "" {
		reply.Format = FormatText
	}
	return reply
}

// stripFence removes a surrounding markdown code fence, if any.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
