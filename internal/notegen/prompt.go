package notegen

import (
	"fmt"
	"strings"
)

// Transcripts beyond this length are tail-truncated before prompting to
// stay inside provider context windows.
const maxPromptTranscriptChars = 180_000

const promptInstructions = `You are an expert study assistant. Read the lecture transcript below and produce a study note as a single JSON object with exactly these fields:

{
  "title": "short descriptive title",
  "summary": "2-4 sentence summary of the lecture",
  "keyPoints": ["between 4 and 20 key points"],
  "actionItems": ["between 2 and 10 concrete follow-up tasks"],
  "studyQuestions": ["between 3 and 15 questions to test understanding"]
}

Respond with the JSON object only. Do not add commentary before or after it.

Transcript:
`

// Prompt builds the study-note prompt for a transcript. All providers in
// the chain use the same prompt so their outputs parse identically.
func Prompt(transcript string) string {
	transcript = strings.TrimSpace(transcript)
	if len(transcript) > maxPromptTranscriptChars {
		transcript = transcript[:maxPromptTranscriptChars]
	}
	return fmt.Sprintf("%s%s", promptInstructions, transcript)
}
