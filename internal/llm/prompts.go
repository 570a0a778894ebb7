package llm

import (
	"fmt"
	"strings"
)

// AnswerPrompt builds the prompt for answering a question from retrieved
// memory context. Context passages arrive most-relevant first; the caller
// appends formula context entries to the same slice when present.
func AnswerPrompt(question string, contexts []string) string {
	var ctx string
	if len(contexts) == 0 {
		ctx = "(no stored context matched the question)"
	} else {
		var b strings.Builder
		for i, c := range contexts {
			fmt.Fprintf(&b, "[%d] %s\n", i+1, c)
		}
		ctx = b.String()
	}

	return fmt.Sprintf(`You are a focused question-answering assistant over a scored document memory.

CONTEXT (most relevant first):
%s
QUESTION: %s

Rules:
- Answer from the context passages above; cite passage numbers like [1] where they support a claim
- If the context does not contain the answer, say so plainly instead of guessing
- Keep mathematical notation exactly as it appears in the context
- Be concise`, ctx, question)
}
