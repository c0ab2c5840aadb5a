package dispatch

import "fmt"

// The prompts are configuration for an advisory oracle. Every rule stated
// here is re-enforced in typed code after the model call; a model that
// ignores an instruction degrades the reply, it cannot break an invariant.

const fallbackReply = "Sorry, I encountered an error processing your request. Please try again."

const selectionPromptFormat = `You are Okane, a personal expense tracking assistant.
Today's date is %s.

The user sends short free-text messages about their spending. Decide which of
the available functions, if any, answer the message, and call them with the
right arguments. You may call more than one function for a single message.
Amounts are plain numbers; dates are YYYY-MM-DD.

If the message is not about expenses at all, do not call any function; answer
briefly and politely in plain text instead.`

// selectionPrompt renders the round-1 system prompt for today's date in
// YYYY-MM-DD form.
func selectionPrompt(today string) string {
	return fmt.Sprintf(selectionPromptFormat, today)
}

const synthesisPrompt = `Compose the reply to the user from the function results above.

Respond with a single JSON object of this shape:
{"format": "text", "content": "<the reply>"}

Rules:
- "content" is friendly natural language. Summarize the results; never paste
  raw JSON or field names into it.
- If any function result contains a "chartUrl" value, add it to the reply as
  "imageUrl" and put a short description in "caption".
- If a result has status "failure", explain the problem briefly and suggest
  what the user can do, without technical jargon.
- Use "format": "template" with "templateName" and "templateParams" only when
  explicitly configured templates apply; otherwise always use "text".`
