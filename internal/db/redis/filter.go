package redis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/resdex/internal/db"
	"github.com/kailas-cloud/resdex/internal/domain/query"
)

// buildQuery compiles a condition tree plus optional free text into an
// FT query string. An empty tree matches everything.
func (s *Store) buildQuery(g query.Group, schema map[string]db.IndexFieldType, text string) (string, error) {
	expr, err := buildGroup(g, schema)
	if err != nil {
		return "", err
	}
	var parts []string
	if expr != "" {
		parts = append(parts, expr)
	}
	if t := buildText(text); t != "" {
		if !s.textSearch {
			return "", fmt.Errorf("%w: full-text search is not available", db.ErrInvalidCondition)
		}
		parts = append(parts, t)
	}
	if len(parts) == 0 {
		return "*", nil
	}
	return strings.Join(parts, " "), nil
}

func buildGroup(g query.Group, schema map[string]db.IndexFieldType) (string, error) {
	var parts []string
	for _, c := range g.Conditions {
		p, err := buildCondition(c, schema)
		if err != nil {
			return "", err
		}
		parts = append(parts, p)
	}
	for _, sub := range g.Groups {
		p, err := buildGroup(sub, schema)
		if err != nil {
			return "", err
		}
		if p != "" {
			parts = append(parts, p)
		}
	}

	switch len(parts) {
	case 0:
		return "", nil
	case 1:
		return parts[0], nil
	}
	sep := " "
	if g.Conjunction == query.Or {
		sep = " | "
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func buildCondition(c query.Condition, schema map[string]db.IndexFieldType) (string, error) {
	ft, ok := schema[c.Path]
	if !ok {
		return "", fmt.Errorf("%w: %s", db.ErrNotFilterable, c.Path)
	}

	switch c.Operator {
	case query.OpIsNull:
		return fmt.Sprintf("ismissing(@%s)", c.Path), nil
	case query.OpIsNotNull:
		return fmt.Sprintf("-ismissing(@%s)", c.Path), nil
	}

	switch ft {
	case db.IndexFieldTag:
		return buildTagCondition(c)
	case db.IndexFieldNumeric:
		return buildNumericCondition(c)
	case db.IndexFieldText:
		return buildTextCondition(c)
	}
	return "", fmt.Errorf("%w: unknown field type for %s", db.ErrInvalidCondition, c.Path)
}

func buildTagCondition(c query.Condition) (string, error) {
	escaped := make([]string, len(c.Values))
	for i, v := range c.Values {
		escaped[i] = tagEscaper.Replace(v)
	}
	switch c.Operator {
	case query.OpEq:
		return fmt.Sprintf("@%s:{%s}", c.Path, escaped[0]), nil
	case query.OpNotEq:
		return fmt.Sprintf("-@%s:{%s}", c.Path, escaped[0]), nil
	case query.OpIn:
		return fmt.Sprintf("@%s:{%s}", c.Path, strings.Join(escaped, " | ")), nil
	case query.OpNotIn:
		return fmt.Sprintf("-@%s:{%s}", c.Path, strings.Join(escaped, " | ")), nil
	case query.OpStartsWith:
		return fmt.Sprintf("@%s:{%s*}", c.Path, escaped[0]), nil
	case query.OpContains:
		return fmt.Sprintf("@%s:{*%s*}", c.Path, escaped[0]), nil
	}
	return "", fmt.Errorf("%w: operator %s is not supported on %s", db.ErrInvalidCondition, c.Operator, c.Path)
}

func buildNumericCondition(c query.Condition) (string, error) {
	nums := make([]string, len(c.Values))
	for i, v := range c.Values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return "", fmt.Errorf("%w: %s expects a number, got %q", db.ErrInvalidCondition, c.Path, v)
		}
		nums[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	rng := func(lo, hi string) string { return fmt.Sprintf("@%s:[%s %s]", c.Path, lo, hi) }

	switch c.Operator {
	case query.OpEq:
		return rng(nums[0], nums[0]), nil
	case query.OpNotEq:
		return "-" + rng(nums[0], nums[0]), nil
	case query.OpGt:
		return rng("("+nums[0], "+inf"), nil
	case query.OpGte:
		return rng(nums[0], "+inf"), nil
	case query.OpLt:
		return rng("-inf", "("+nums[0]), nil
	case query.OpLte:
		return rng("-inf", nums[0]), nil
	case query.OpBetween:
		return rng(nums[0], nums[1]), nil
	case query.OpIn, query.OpNotIn:
		parts := make([]string, len(nums))
		for i, n := range nums {
			parts[i] = rng(n, n)
		}
		expr := "(" + strings.Join(parts, " | ") + ")"
		if c.Operator == query.OpNotIn {
			expr = "-" + expr
		}
		return expr, nil
	}
	return "", fmt.Errorf("%w: operator %s is not supported on %s", db.ErrInvalidCondition, c.Operator, c.Path)
}

func buildTextCondition(c query.Condition) (string, error) {
	switch c.Operator {
	case query.OpEq, query.OpContains:
		return fmt.Sprintf("@%s:(%s)", c.Path, escapeQuery(c.Values[0])), nil
	case query.OpNotEq:
		return fmt.Sprintf("-@%s:(%s)", c.Path, escapeQuery(c.Values[0])), nil
	case query.OpStartsWith:
		return fmt.Sprintf("@%s:(%s*)", c.Path, escapeQuery(c.Values[0])), nil
	}
	return "", fmt.Errorf("%w: operator %s is not supported on %s", db.ErrInvalidCondition, c.Operator, c.Path)
}

// buildText turns free text into a conjunction of escaped terms.
func buildText(text string) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	for i, w := range words {
		words[i] = escapeQuery(w)
	}
	return "(" + strings.Join(words, " ") + ")"
}

// --- Query helpers ---

var tagEscaper = strings.NewReplacer(
	`\`, `\\`,
	",", "\\,",
	".", "\\.",
	"<", "\\<",
	">", "\\>",
	"{", "\\{",
	"}", "\\}",
	"[", "\\[",
	"]", "\\]",
	"|", "\\|",
	"/", "\\/",
	"\"", "\\\"",
	"'", "\\'",
	":", "\\:",
	";", "\\;",
	"!", "\\!",
	"@", "\\@",
	"#", "\\#",
	"$", "\\$",
	"%", "\\%",
	"^", "\\^",
	"&", "\\&",
	"*", "\\*",
	"(", "\\(",
	")", "\\)",
	"-", "\\-",
	"+", "\\+",
	"=", "\\=",
	"~", "\\~",
	" ", "\\ ",
)

func escapeQuery(s string) string {
	return queryEscaper.Replace(s)
}

var queryEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
	`,`, `\,`,
	`.`, `\.`,
)
