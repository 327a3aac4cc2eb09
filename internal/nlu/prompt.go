package nlu

import (
	"fmt"
	"slices"
	"strings"
)

// Function exposed to LLM drivers. The model must call it exactly once.
const (
	classifyFunctionName = "classify_intent"
	classifyFunctionDesc = "Record the intent that best describes the user's message."
	argIntent            = "intent"
	argScore             = "score"
)

// NoneIntent is returned by LLM drivers when no listed intent applies.
const NoneIntent = "None"

// intentList appends NoneIntent to the configured intents when missing.
func intentList(intents []string) []string {
	out := make([]string, 0, len(intents)+1)
	for _, in := range intents {
		in = strings.TrimSpace(in)
		if in != "" && !slices.Contains(out, in) {
			out = append(out, in)
		}
	}
	if !slices.Contains(out, NoneIntent) {
		out = append(out, NoneIntent)
	}
	return out
}

func systemPrompt(intents []string) string {
	return fmt.Sprintf(`You classify chat messages sent to a bot.
Call %s exactly once with the intent that best matches the user's message
and a confidence score between 0 and 1.
Allowed intents: %s.
Use %q when none of the other intents apply.`,
		classifyFunctionName, strings.Join(intents, ", "), NoneIntent)
}

// classification builds a Result from the function call arguments, mapping
// unknown intents to NoneIntent and clamping the score.
func classification(query string, intents []string, args map[string]any) (*Result, error) {
	name, ok := args[argIntent].(string)
	if !ok || name == "" {
		return nil, fmt.Errorf("missing %q argument", argIntent)
	}
	if !slices.Contains(intents, name) {
		name = NoneIntent
	}

	score := 1.0
	switch v := args[argScore].(type) {
	case float64:
		score = v
	case float32:
		score = float64(v)
	case int:
		score = float64(v)
	}
	score = min(max(score, 0), 1)

	result := &Result{
		Query:   query,
		Intents: []Intent{{Name: name, Score: score}},
	}
	result.rank()
	return result, nil
}
