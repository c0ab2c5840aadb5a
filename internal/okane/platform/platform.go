// Package platform maps canonical reply envelopes to per-platform outbound
// messages.
//
// Formatters are pure: they never talk to a transport. The transport layer
// takes the neutral Outbound shape and puts it on the wire.
package platform

import (
	"fmt"

	"github.com/okanebot/okane/internal/okane/envelope"
)

// Kind discriminates the outbound message shapes.
type Kind string

const (
	KindText     Kind = "text"
	KindTemplate Kind = "template"
	KindImage    Kind = "image"
)

// Outbound is a platform-neutral outbound message. Exactly one shape is
// populated, selected by Kind.
type Outbound struct {
	Kind Kind

	// Text is the message body for KindText.
	Text string

	// TemplateName and TemplateParams carry a KindTemplate message; params
	// are positional, in the template's declared slot order.
	TemplateName   string
	TemplateParams []string

	// ImageURL and Caption carry a KindImage message.
	ImageURL string
	Caption  string
}

// Formatter renders reply envelopes for one platform.
type Formatter interface {
	// Platform is the stable platform identifier ("matrix", "whatsapp").
	Platform() string

	// Approves reports whether name is a pre-approved template on this
	// platform. Envelope normalization degrades unapproved templates to
	// text before Format runs.
	Approves(name string) bool

	// Format maps a normalized envelope to an outbound message.
	Format(reply envelope.Reply) Outbound
}

// Registry holds the formatter for each configured platform.
type Registry struct {
	byName map[string]Formatter
}

// NewRegistry builds a registry from the given formatters.
func NewRegistry(formatters ...Formatter) (*Registry, error) {
	byName := make(map[string]Formatter, len(formatters))
	for _, f := range formatters {
		name := f.Platform()
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("platform: duplicate formatter for %q", name)
		}
		byName[name] = f
	}
	return &Registry{byName: byName}, nil
}

// Lookup returns the formatter for the named platform.
func (r *Registry) Lookup(name string) (Formatter, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Render normalizes reply against the formatter's approved templates and
// formats it. This is the one entry point transports should use.
func Render(f Formatter, reply envelope.Reply) Outbound {
	return f.Format(envelope.Normalize(reply, f.Approves))
}
