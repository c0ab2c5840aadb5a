package platform

import "github.com/okanebot/okane/internal/okane/envelope"

// MatrixFormatter renders envelopes for Matrix rooms. Matrix has no
// pre-approved template mechanism, so every template reply degrades to its
// text content.
type MatrixFormatter struct{}

func NewMatrixFormatter() *MatrixFormatter {
	return &MatrixFormatter{}
}

func (f *MatrixFormatter) Platform() string { return "matrix" }

func (f *MatrixFormatter) Approves(string) bool { return false }

// Format emits an image message when the envelope carries one, otherwise
// plain text.
func (f *MatrixFormatter) Format(reply envelope.Reply) Outbound {
	if reply.ImageURL != "" {
		return Outbound{
			Kind:     KindImage,
			ImageURL: reply.ImageURL,
			Caption:  captionOf(reply),
		}
	}
	return Outbound{Kind: KindText, Text: reply.Content}
}

// captionOf prefers the explicit caption, falling back to the reply content.
func captionOf(reply envelope.Reply) string {
	if reply.Caption != "" {
		return reply.Caption
	}
	return reply.Content
}
