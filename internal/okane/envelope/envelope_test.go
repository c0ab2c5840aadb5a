package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTextReply(t *testing.T) {
	reply, err := Parse(`{"format":"text","content":"You spent $42.50 this week."}`)

	require.NoError(t, err)
	assert.Equal(t, FormatText, reply.Format)
	assert.Equal(t, "You spent $42.50 this week.", reply.Content)
}

func TestParseTemplateReplyCoercesScalarParams(t *testing.T) {
	reply, err := Parse(`{
		"format": "template",
		"content": "Weekly summary ready.",
		"templateName": "weekly_summary",
		"templateParams": {"total": 42.5, "count": 7, "period": "this_week", "final": true}
	}`)

	require.NoError(t, err)
	assert.Equal(t, FormatTemplate, reply.Format)
	assert.Equal(t, "weekly_summary", reply.TemplateName)
	assert.Equal(t, Params{
		"total":  "42.5",
		"count":  "7",
		"period": "this_week",
		"final":  "true",
	}, reply.TemplateParams)
}

func TestParseRejectsNestedTemplateParams(t *testing.T) {
	_, err := Parse(`{
		"format": "template",
		"content": "x",
		"templateName": "weekly_summary",
		"templateParams": {"rows": [1, 2]}
	}`)

	require.Error(t, err)
}

func TestParseFencedReply(t *testing.T) {
	raw := "```json\n{\"format\":\"text\",\"content\":\"Recorded.\"}\n```"

	reply, err := Parse(raw)

	require.NoError(t, err)
	assert.Equal(t, "Recorded.", reply.Content)
}

func TestParseRejectsUnknownFormat(t *testing.T) {
	_, err := Parse(`{"format":"card","content":"hi"}`)
	require.Error(t, err)
}

func TestParseRejectsEmptyContent(t *testing.T) {
	_, err := Parse(`{"format":"text"}`)
	require.Error(t, err)
}

func TestParseOrTextFallsBackOnProse(t *testing.T) {
	reply := ParseOrText("I could not find any expenses for that period.")

	assert.Equal(t, FormatText, reply.Format)
	assert.Equal(t, "I could not find any expenses for that period.", reply.Content)
}

func TestNormalizeDegradesUnapprovedTemplate(t *testing.T) {
	approved := func(name string) bool { return name == "weekly_summary" }

	tests := []struct {
		name  string
		reply Reply
	}{
		{
			name: "unknown template name",
			reply: Reply{
				Format:         FormatTemplate,
				Content:        "Summary ready.",
				TemplateName:   "monthly_digest",
				TemplateParams: Params{"total": "10"},
			},
		},
		{
			name:  "missing template name",
			reply: Reply{Format: FormatTemplate, Content: "Summary ready."},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.reply, approved)

			assert.Equal(t, FormatText, got.Format)
			assert.Equal(t, "Summary ready.", got.Content)
			assert.Empty(t, got.TemplateName)
			assert.Nil(t, got.TemplateParams)
		})
	}
}

func TestNormalizeKeepsApprovedTemplate(t *testing.T) {
	approved := func(name string) bool { return name == "weekly_summary" }
	reply := Reply{
		Format:         FormatTemplate,
		Content:        "Summary ready.",
		TemplateName:   "weekly_summary",
		TemplateParams: Params{"total": "10"},
	}

	got := Normalize(reply, approved)

	assert.Equal(t, FormatTemplate, got.Format)
	assert.Equal(t, "weekly_summary", got.TemplateName)
}

func TestNormalizePreservesImage(t *testing.T) {
	reply := Reply{
		Format:   FormatText,
		Content:  "Here is your chart.",
		ImageURL: "https://quickchart.io/chart/render/abc",
		Caption:  "Spending by category",
	}

	got := Normalize(reply, nil)

	assert.Equal(t, reply, got)
}
