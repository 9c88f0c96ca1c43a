package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

// flexBool accepts the loose booleans models tend to produce.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "approved", "satisfactory":
			*b = true
		case "false", "no", "rejected", "unsatisfactory", "":
			*b = false
		default:
			return fmt.Errorf("cannot read %q as boolean", t)
		}
	case nil:
		*b = false
	default:
		return fmt.Errorf("cannot read %v as boolean", t)
	}
	return nil
}

type strategyReply struct {
	Strategy  json.RawMessage `json:"strategy"`
	Commands  []string        `json:"commands"`
	Rationale string          `json:"rationale"`
	Plan      map[string]any  `json:"plan"`
}

// commands accepts either {"commands": [...]} or {"strategy": [...]}, and a
// newline separated string in place of either list.
func (r strategyReply) commands() ([]string, error) {
	if len(r.Commands) > 0 {
		return compact(r.Commands), nil
	}
	if len(r.Strategy) == 0 {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(r.Strategy, &list); err == nil {
		return compact(list), nil
	}
	var text string
	if err := json.Unmarshal(r.Strategy, &text); err == nil {
		return compact(strings.Split(text, "\n")), nil
	}
	return nil, fmt.Errorf("strategy field is neither a list nor a string")
}

type reviewReply struct {
	Approved       *flexBool `json:"approved"`
	ReportApproval *flexBool `json:"Report Approval"`
	Feedback       string    `json:"feedback"`
}

func (r reviewReply) approved() (bool, error) {
	switch {
	case r.Approved != nil:
		return bool(*r.Approved), nil
	case r.ReportApproval != nil:
		return bool(*r.ReportApproval), nil
	default:
		return false, fmt.Errorf("reply has no approval decision")
	}
}

type assessmentReply struct {
	Satisfactory *flexBool `json:"satisfactory"`
	Feedback     string    `json:"feedback"`
}

// decodeReply unmarshals the first well-formed JSON object in content.
// Prose around it, including placeholders such as {target}, is skipped.
func decodeReply(content string, v any) error {
	for _, candidate := range jsonCandidates(content) {
		if !json.Valid([]byte(candidate)) {
			continue
		}
		if err := json.Unmarshal([]byte(candidate), v); err != nil {
			return fmt.Errorf("parse reply: %w", err)
		}
		return nil
	}
	return fmt.Errorf("reply contains no JSON object")
}

// jsonCandidates returns every balanced {...} span in text, in order of
// their opening brace.
func jsonCandidates(text string) []string {
	var out []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if end, ok := matchBrace(text, i); ok {
			out = append(out, text[i:end+1])
		}
	}
	return out
}

// matchBrace finds the brace closing the one at start, ignoring braces
// inside JSON strings.
func matchBrace(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escape:
				escape = false
			case c == '\\':
				escape = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// stripFence unwraps a reply that is one fenced block and nothing else.
// Anything else, such as a report that merely opens with a code block, is
// returned trimmed but intact.
func stripFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < 6 || !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") {
		return trimmed
	}
	nl := strings.IndexByte(trimmed, '\n')
	if nl < 0 || strings.ContainsAny(strings.TrimSpace(trimmed[3:nl]), " `") {
		return trimmed
	}
	body := trimmed[nl+1 : len(trimmed)-3]
	if strings.Contains(body, "```") {
		return trimmed
	}
	return strings.TrimSpace(body)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
