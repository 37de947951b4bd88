package workflow

import "strings"

// Parameter values of the exact form {{...}} are resolved by a pure
// dotted-path lookup against one of three roots: the current item's JSON
// payload ($json), the workflow's static data ($workflow.staticData), or the
// node's own parameters ($node). No arithmetic, conditionals, or function
// calls - this is a deliberate scope limit.

type exprRoot int

const (
	rootJSON exprRoot = iota
	rootStaticData
	rootNode
)

type pathRef struct {
	root exprRoot
	path []string
}

// parseExpression recognizes {{$json.x.y}}, {{$workflow.staticData.x}} and
// {{$node.x}}. Anything else is not an expression.
func parseExpression(s string) (pathRef, bool) {
	if !strings.HasPrefix(s, "{{") || !strings.HasSuffix(s, "}}") {
		return pathRef{}, false
	}
	expr := strings.TrimSpace(s[2 : len(s)-2])

	switch {
	case strings.HasPrefix(expr, "$json."):
		return pathRef{root: rootJSON, path: splitPath(expr[len("$json."):])}, true
	case strings.HasPrefix(expr, "$workflow.staticData."):
		return pathRef{root: rootStaticData, path: splitPath(expr[len("$workflow.staticData."):])}, true
	case strings.HasPrefix(expr, "$node."):
		return pathRef{root: rootNode, path: splitPath(expr[len("$node."):])}, true
	}
	return pathRef{}, false
}

func splitPath(p string) []string {
	return strings.Split(p, ".")
}

// resolveParameter resolves value against the execution context and the
// current item. Non-string values and strings that are not expressions pass
// through unchanged; a resolvable expression whose path is absent yields nil.
func resolveParameter(value any, ec *ExecContext, item *Item) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	ref, ok := parseExpression(s)
	if !ok {
		return value
	}

	switch ref.root {
	case rootJSON:
		if item == nil {
			return nil
		}
		return lookupPath(item.JSON, ref.path)
	case rootStaticData:
		return lookupPath(ec.Workflow.StaticData, ref.path)
	case rootNode:
		return lookupPath(ec.Node.Parameters, ref.path)
	}
	return value
}

// resolveString is resolveParameter for parameters that must end up as
// strings; non-string resolutions fall back to the empty string.
func resolveString(value any, ec *ExecContext, item *Item) string {
	resolved := resolveParameter(value, ec, item)
	if s, ok := resolved.(string); ok {
		return s
	}
	return ""
}

func lookupPath(obj map[string]any, path []string) any {
	var current any = obj
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[key]
		if !ok {
			return nil
		}
	}
	return current
}
