package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"text/template"
)

// placeholderRe matches single-brace state placeholders such as {plan_result}.
var placeholderRe = regexp.MustCompile(`\{\{|\}\}|\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// RenderTemplate renders prompt / argument templates against run state. Two
// forms are accepted:
//
//	{{.key}} / {{default "x" .key}}   Go text/template with helper funcs
//	{key}                            plain placeholder, replaced when key is in state
//
// Unknown single-brace placeholders are left untouched.
func RenderTemplate(text string, state map[string]any) (string, error) {
	out := text

	if strings.Contains(out, "{{") {
		tmpl, err := template.New("prompt").Funcs(template.FuncMap{
			"default": func(defaultVal any, val any) any {
				if val == nil || val == "" {
					return defaultVal
				}
				return val
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"json": func(v any) (string, error) {
				b, err := json.Marshal(v)
				return string(b), err
			},
			"join": func(sep string, items []any) string {
				strItems := make([]string, len(items))
				for i, item := range items {
					strItems[i] = fmt.Sprintf("%v", item)
				}
				return strings.Join(strItems, sep)
			},
		}).Parse(out)
		if err != nil {
			return "", err
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, state); err != nil {
			return "", err
		}

		out = buf.String()
	}

	return substitutePlaceholders(out, state), nil
}

func substitutePlaceholders(text string, state map[string]any) string {
	if !strings.Contains(text, "{") {
		return text
	}

	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		if m == "{{" || m == "}}" {
			return m
		}

		key := m[1 : len(m)-1]

		v, ok := state[key]
		if !ok {
			return m
		}

		return Stringify(v)
	})
}

// Stringify renders a state value for prompts: strings verbatim, maps and
// slices as JSON, everything else with %v.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", x)
	}
}
