package llm

import (
	"fmt"
	"strings"
)

const AnswerPrompt = `Answer the question using only the context below. The context is a set of passages retrieved from a document, most relevant first.

Rules:
- If the context does not contain the answer, say so in one sentence
- Quote figures and names exactly as they appear
- Keep the answer under 200 words`

const ImagePrompt = `The images below were retrieved from a document as relevant to a question. Describe what they show that bears on the question. If they are not relevant, say so briefly.`

// BuildTextPrompt creates the full prompt for answering from text segments.
func BuildTextPrompt(question string, segments []string) string {
	var sb strings.Builder
	sb.WriteString(AnswerPrompt)
	sb.WriteString("\n\n---\n")
	sb.WriteString(strings.Join(segments, "\n"))
	sb.WriteString("\n---\n")
	if question != "" {
		sb.WriteString(fmt.Sprintf("Question: %s\n", question))
	}
	return sb.String()
}

// BuildImagePrompt creates the instruction that accompanies retrieved images.
func BuildImagePrompt(question string) string {
	if question == "" {
		return ImagePrompt
	}
	return ImagePrompt + "\n\nQuestion: " + question
}
