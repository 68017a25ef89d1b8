package notegen

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParse marks a model output that could not be turned into a valid note.
// Parse failures are retryable within a provider: the next attempt may
// produce well-formed output.
var ErrParse = errors.New("cannot parse note from model output")

// List size bounds for a usable note. Overlong lists are truncated;
// undersized lists fail the parse so the attempt is retried.
const (
	minKeyPoints      = 4
	maxKeyPoints      = 20
	minActionItems    = 2
	maxActionItems    = 10
	minStudyQuestions = 3
	maxStudyQuestions = 15
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// Parse extracts a Note from raw model output. Three strategies are tried
// in order: the whole output as JSON, the first fenced JSON block, and the
// first balanced top-level JSON object found by scanning.
func Parse(raw string) (Note, error) {
	candidates := []string{strings.TrimSpace(raw)}

	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}

	if obj := firstBalancedObject(raw); obj != "" {
		candidates = append(candidates, obj)
	}

	var lastErr error
	for _, candidate := range candidates {
		var note Note
		if err := json.Unmarshal([]byte(candidate), &note); err != nil {
			lastErr = err
			continue
		}
		if err := validateNote(&note); err != nil {
			lastErr = err
			continue
		}
		return note, nil
	}

	if lastErr == nil {
		lastErr = errors.New("no JSON object found")
	}
	return Note{}, fmt.Errorf("%w: %v", ErrParse, lastErr)
}

// firstBalancedObject returns the first top-level {...} span with balanced
// braces, ignoring braces inside JSON strings.
func firstBalancedObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}

func validateNote(note *Note) error {
	note.Title = strings.TrimSpace(note.Title)
	note.Summary = strings.TrimSpace(note.Summary)
	if note.Title == "" {
		return errors.New("note has no title")
	}
	if note.Summary == "" {
		return errors.New("note has no summary")
	}

	var err error
	if note.KeyPoints, err = boundList("keyPoints", note.KeyPoints, minKeyPoints, maxKeyPoints); err != nil {
		return err
	}
	if note.ActionItems, err = boundList("actionItems", note.ActionItems, minActionItems, maxActionItems); err != nil {
		return err
	}
	if note.StudyQuestions, err = boundList("studyQuestions", note.StudyQuestions, minStudyQuestions, maxStudyQuestions); err != nil {
		return err
	}
	return nil
}

func boundList(field string, items []string, min, max int) ([]string, error) {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}

	if len(cleaned) < min {
		return nil, fmt.Errorf("%s has %d entries, need at least %d", field, len(cleaned), min)
	}
	if len(cleaned) > max {
		cleaned = cleaned[:max]
	}
	return cleaned, nil
}
