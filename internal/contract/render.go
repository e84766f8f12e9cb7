package contract

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const generatedTemplate = "{{resource}}\n| where {{time_column}} > ago({{lookback}}){{where}}{{project}}\n| take {{limit}}"

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	safeValueRe   = regexp.MustCompile(`^[A-Za-z0-9_.:@/+\-]*$`)
	lookbackRe    = regexp.MustCompile(`^[0-9]+(ms|s|m|h|d)$`)
)

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func (s ToolSpec) template() string {
	if strings.TrimSpace(s.QueryTemplate) != "" {
		return s.QueryTemplate
	}
	return generatedTemplate
}

// parseTemplate returns the placeholder names used by tmpl in order.
func parseTemplate(tmpl string) ([]string, error) {
	if strings.Count(tmpl, "{{") != strings.Count(tmpl, "}}") {
		return nil, fmt.Errorf("query_template has unbalanced braces")
	}
	matches := placeholderRe.FindAllStringSubmatch(tmpl, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names, nil
}

var reservedPlaceholders = map[string]bool{
	"resource":    true,
	"time_column": true,
	"where":       true,
	"project":     true,
	"limit":       true,
}

// Parameters lists the caller-settable placeholders of a contract's
// template, in template order, without duplicates. limit is always settable
// and not included.
func Parameters(spec ToolSpec) []string {
	names, err := parseTemplate(spec.template())
	if err != nil {
		return nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		if reservedPlaceholders[name] || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Render substitutes params into the contract's query template. It is a pure
// function: no I/O, no side effects.
func Render(spec ToolSpec, params map[string]any, limit int) (string, error) {
	values := make(map[string]any, len(spec.Defaults)+len(params)+6)
	for k, v := range spec.Defaults {
		values[k] = v
	}
	for k, v := range params {
		values[k] = v
	}
	values["limit"] = limit
	values["resource"] = spec.Resource
	values["time_column"] = spec.timeColumn()
	if _, ok := values["lookback"]; !ok {
		values["lookback"] = spec.lookback()
	}

	lookback := fmt.Sprint(values["lookback"])
	if !lookbackRe.MatchString(lookback) {
		return "", &ConstraintViolation{Tool: spec.Name, Param: "lookback", Detail: fmt.Sprintf("invalid relative window %q", lookback)}
	}

	builtins := map[string]string{
		"where":   buildWhere(spec.Where),
		"project": buildProject(spec.Project),
	}

	var renderErr error
	query := placeholderRe.ReplaceAllStringFunc(spec.template(), func(token string) string {
		if renderErr != nil {
			return token
		}
		name := placeholderRe.FindStringSubmatch(token)[1]
		if clause, ok := builtins[name]; ok {
			return clause
		}
		v, ok := values[name]
		if !ok || v == nil {
			renderErr = &ConstraintViolation{Tool: spec.Name, Param: name, Detail: "missing required parameter"}
			return token
		}
		text := rawValue(v)
		if name != "resource" && name != "time_column" && !safeValueRe.MatchString(text) {
			renderErr = &ConstraintViolation{Tool: spec.Name, Param: name, Detail: "value contains characters not allowed in a query"}
			return token
		}
		return text
	})
	if renderErr != nil {
		return "", renderErr
	}
	return query, nil
}

// HasTimeFilter reports whether query bounds timeColumn from below and
// contains the relative-time call timeFunction. The check is syntactic only.
func HasTimeFilter(query, timeColumn, timeFunction string) bool {
	if timeColumn == "" {
		timeColumn = DefaultTimeColumn
	}
	if timeFunction == "" {
		timeFunction = DefaultTimeFunction
	}
	return (strings.Contains(query, timeColumn+" >") || strings.Contains(query, timeColumn+">")) &&
		strings.Contains(query, timeFunction)
}

func buildWhere(filters []Filter) string {
	if len(filters) == 0 {
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		if list, ok := f.Value.([]any); ok && f.Op == "in" {
			vals := make([]string, 0, len(list))
			for _, v := range list {
				vals = append(vals, formatValue(v))
			}
			parts = append(parts, fmt.Sprintf("%s in (%s)", f.Col, strings.Join(vals, ", ")))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s %s", f.Col, f.Op, formatValue(f.Value)))
	}
	return " | where " + strings.Join(parts, " and ")
}

func buildProject(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	return " | project " + strings.Join(cols, ", ")
}

// formatValue renders a literal for a where clause.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return `"` + quoteEscaper.Replace(val) + `"`
	case bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return rawValue(v)
	}
}

func rawValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// toLimit accepts the numeric shapes a limit arrives in from JSON, YAML,
// flags or Go callers.
func toLimit(v any) (int, error) {
	var n int64
	switch val := v.(type) {
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case uint:
		n = int64(val)
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt32 {
			return 0, fmt.Errorf("must be a positive integer")
		}
		n = int64(val)
	case json.Number:
		parsed, err := strconv.ParseInt(val.String(), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("must be a positive integer")
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("must be a positive integer")
		}
		n = parsed
	default:
		return 0, fmt.Errorf("must be a positive integer")
	}
	if n < 1 || n > math.MaxInt32 {
		return 0, fmt.Errorf("must be a positive integer")
	}
	return int(n), nil
}
