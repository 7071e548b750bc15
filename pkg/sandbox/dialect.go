package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Submissions are written as Python. Starlark covers the subset the exercises
// need once strings iterate by character and f-strings are available; both are
// bridged here rather than asking students to learn another dialect.

// Python-like dialect: top-level loops, while, reassignment and recursion are allowed.
var submissionFileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Hidden builtins targeted by the source rewrites below.
const (
	iterName   = "__iter__"
	formatName = "__format__"
)

// Builtins whose iterable arguments accept strings the way Python does.
var stringAwareBuiltins = map[string]func(args starlark.Tuple) starlark.Tuple{
	"list":      charsFirstArg,
	"tuple":     charsFirstArg,
	"set":       charsFirstArg,
	"sorted":    charsFirstArg,
	"reversed":  charsFirstArg,
	"enumerate": charsFirstArg,
	"any":       charsFirstArg,
	"all":       charsFirstArg,
	"zip":       charsAllArgs,
	"min":       charsSoleArg,
	"max":       charsSoleArg,
}

var predeclared = newPredeclared()

func newPredeclared() starlark.StringDict {
	dict := starlark.StringDict{
		"sum":      starlark.NewBuiltin("sum", builtinSum),
		iterName:   starlark.NewBuiltin("iter", builtinIter),
		formatName: starlark.NewBuiltin("format", builtinFormat),
		"format":   starlark.NewBuiltin("format", builtinFormat),
	}
	for name, convert := range stringAwareBuiltins {
		inner, ok := starlark.Universe[name].(*starlark.Builtin)
		if !ok {
			continue
		}
		dict[name] = wrapBuiltin(inner, convert)
	}
	return dict
}

// compileSubmission parses src as Python-flavoured Starlark and resolves it
// against the predeclared builtins.
func compileSubmission(src string) (*starlark.Program, error) {
	f, err := submissionFileOptions.Parse(submissionFileName, translateFStrings(src), 0)
	if err != nil {
		return nil, err
	}
	routeLoopsThroughIter(f)
	return starlark.FileProgram(f, predeclared.Has)
}

// routeLoopsThroughIter rewrites `for x in seq` into `for x in __iter__(seq)`
// in statements and comprehensions.
func routeLoopsThroughIter(f *syntax.File) {
	syntax.Walk(f, func(n syntax.Node) bool {
		switch n := n.(type) {
		case *syntax.ForStmt:
			n.X = iterCall(n.X)
		case *syntax.ForClause:
			n.X = iterCall(n.X)
		}
		return true
	})
}

func iterCall(x syntax.Expr) syntax.Expr {
	start, end := x.Span()
	return &syntax.CallExpr{
		Fn:     &syntax.Ident{NamePos: start, Name: iterName},
		Lparen: start,
		Args:   []syntax.Expr{x},
		Rparen: end,
	}
}

func builtinIter(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if s, ok := x.(starlark.String); ok {
		return chars(s), nil
	}
	return x, nil
}

func wrapBuiltin(inner *starlark.Builtin, convert func(starlark.Tuple) starlark.Tuple) *starlark.Builtin {
	return starlark.NewBuiltin(inner.Name(), func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return starlark.Call(thread, inner, convert(args), kwargs)
	})
}

// chars splits a string into its code points, as Python iteration does.
func chars(s starlark.String) starlark.Tuple {
	out := make(starlark.Tuple, 0, len(s))
	for _, r := range string(s) {
		out = append(out, starlark.String(string(r)))
	}
	return out
}

func charsFirstArg(args starlark.Tuple) starlark.Tuple {
	if len(args) == 0 {
		return args
	}
	if s, ok := args[0].(starlark.String); ok {
		return append(starlark.Tuple{chars(s)}, args[1:]...)
	}
	return args
}

func charsAllArgs(args starlark.Tuple) starlark.Tuple {
	converted := make(starlark.Tuple, len(args))
	for i, arg := range args {
		if s, ok := arg.(starlark.String); ok {
			converted[i] = chars(s)
			continue
		}
		converted[i] = arg
	}
	return converted
}

// min("abc") iterates, min("a", "b") compares the strings themselves.
func charsSoleArg(args starlark.Tuple) starlark.Tuple {
	if len(args) != 1 {
		return args
	}
	return charsFirstArg(args)
}

// formatSpec is the supported subset of Python's format mini-language:
// [<>][sign][0][width][.precision][type].
var formatSpec = regexp.MustCompile(`^([<>]?)([+ ]?)(0?)([0-9]*)(\.[0-9]+)?([bdoxXeEfFgGs%]?)$`)

func builtinFormat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	var spec string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x, &spec); err != nil {
		return nil, err
	}
	out, err := formatValue(x, spec)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", b.Name(), err)
	}
	return starlark.String(out), nil
}

// formatValue mirrors Python's format(x, spec) for the common numeric and
// padding cases.
func formatValue(x starlark.Value, spec string) (string, error) {
	text, isString := x.(starlark.String)
	if spec == "" {
		if isString {
			return string(text), nil
		}
		return x.String(), nil
	}

	m := formatSpec.FindStringSubmatch(spec)
	if m == nil {
		return "", fmt.Errorf("unsupported format spec %q", spec)
	}
	align, sign, zero, width, precision, verb := m[1], m[2], m[3], m[4], m[5], m[6]

	var arg interface{}
	suffix := ""
	switch v := x.(type) {
	case starlark.Int:
		i, ok := v.Int64()
		if !ok {
			return "", errors.New("integer too large to format")
		}
		switch verb {
		case "", "d":
			verb, arg = "d", i
		case "b", "o", "x", "X":
			arg = i
		case "s":
			return "", errors.New("unknown format code 's' for int")
		default:
			arg = float64(i)
		}
	case starlark.Float:
		switch verb {
		case "":
			if precision == "" {
				verb, arg = "s", v.String()
			} else {
				verb, arg = "g", float64(v)
			}
		case "b", "d", "o", "x", "X", "s":
			return "", fmt.Errorf("unknown format code '%s' for float", verb)
		default:
			arg = float64(v)
		}
	default:
		if verb != "" && verb != "s" {
			return "", fmt.Errorf("unknown format code '%s' for %s", verb, x.Type())
		}
		verb = "s"
		arg = x.String()
		if isString {
			arg = string(text)
		}
		if align == "" {
			align = "<"
		}
	}

	if verb == "%" {
		verb, suffix = "f", "%"
		arg = arg.(float64) * 100
	}
	if precision == "" && (verb == "f" || verb == "F" || verb == "e" || verb == "E") {
		precision = ".6"
	}

	flags := sign
	switch {
	case align == "<":
		flags += "-"
	case zero != "":
		flags += "0"
	}
	return fmt.Sprintf("%"+flags+width+precision+verb, arg) + suffix, nil
}

// translateFStrings rewrites f-string literals into equivalent str.format
// calls. Line breaks are preserved so error positions keep their line.
// Literals it cannot translate are left alone for the parser to report.
func translateFStrings(src string) string {
	if !strings.Contains(src, "f'") && !strings.Contains(src, `f"`) &&
		!strings.Contains(src, "F'") && !strings.Contains(src, `F"`) {
		return src
	}

	var out strings.Builder
	out.Grow(len(src))
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '#':
			end := strings.IndexByte(src[i:], '\n')
			if end < 0 {
				end = len(src) - i
			}
			out.WriteString(src[i : i+end])
			i += end
		case c == '"' || c == '\'':
			end := scanStringLiteral(src, i)
			out.WriteString(src[i:end])
			i = end
		case isIdentStart(c):
			j := i
			for j < len(src) && isIdentPart(src[j]) {
				j++
			}
			word := src[i:j]
			if j < len(src) && (src[j] == '"' || src[j] == '\'') && isFStringPrefix(word) {
				if translated, end, ok := translateFString(src, j, strings.ReplaceAll(strings.ToLower(word), "f", "")); ok {
					out.WriteString(translated)
					i = end
					continue
				}
			}
			out.WriteString(word)
			i = j
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isFStringPrefix(word string) bool {
	switch strings.ToLower(word) {
	case "f", "rf", "fr":
		return true
	}
	return false
}

// scanStringLiteral returns the index just past the literal starting at src[i].
func scanStringLiteral(src string, i int) int {
	delim := src[i : i+1]
	if strings.HasPrefix(src[i:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}
	for j := i + len(delim); j < len(src); {
		switch {
		case src[j] == '\\':
			j += 2
		case strings.HasPrefix(src[j:], delim):
			return j + len(delim)
		case src[j] == '\n' && len(delim) == 1:
			return j
		default:
			j++
		}
	}
	return len(src)
}

// translateFString converts the f-string whose opening quote is at src[i].
func translateFString(src string, i int, prefix string) (string, int, bool) {
	delim := src[i : i+1]
	if strings.HasPrefix(src[i:], strings.Repeat(delim, 3)) {
		delim = strings.Repeat(delim, 3)
	}

	var literal strings.Builder
	var args []string
	for j := i + len(delim); j < len(src); {
		switch {
		case src[j] == '\\':
			if j+1 >= len(src) {
				return "", 0, false
			}
			literal.WriteString(src[j : j+2])
			j += 2
		case strings.HasPrefix(src[j:], delim):
			translated := "(" + prefix + delim + literal.String() + delim + ".format(" + strings.Join(args, ", ") + "))"
			return translated, j + len(delim), true
		case src[j] == '\n' && len(delim) == 1:
			return "", 0, false
		case strings.HasPrefix(src[j:], "{{"), strings.HasPrefix(src[j:], "}}"):
			literal.WriteString(src[j : j+2])
			j += 2
		case src[j] == '{':
			field, end, ok := scanReplacementField(src, j+1)
			if !ok {
				return "", 0, false
			}
			args = append(args, field.argument())
			literal.WriteString("{}")
			j = end
		default:
			literal.WriteByte(src[j])
			j++
		}
	}
	return "", 0, false
}

type replacementField struct {
	expr       string
	conversion string
	spec       string
}

// argument renders the field as an expression producing its final text.
func (f replacementField) argument() string {
	arg := "(" + f.expr + ")"
	switch f.conversion {
	case "r", "a":
		arg = "repr" + arg
	case "s":
		arg = "str" + arg
	}
	if f.spec != "" {
		arg = formatName + "(" + arg + ", " + strconv.Quote(f.spec) + ")"
	}
	return arg
}

// scanReplacementField reads `expr[!conv][:spec]}` starting at src[j].
func scanReplacementField(src string, j int) (replacementField, int, bool) {
	var field replacementField
	depth := 0
	start := j
	exprEnd := -1
	for j < len(src) {
		c := src[j]
		switch {
		case c == '"' || c == '\'':
			j = scanStringLiteral(src, j)
			continue
		case c == '\n':
			return field, 0, false
		case c == '(' || c == '[' || c == '{':
			depth++
		case (c == ')' || c == ']') && depth > 0:
			depth--
		case c == '}' && depth > 0:
			depth--
		case c == '}':
			if exprEnd < 0 {
				exprEnd = j
			}
			field.expr = strings.TrimSpace(src[start:exprEnd])
			if field.expr == "" {
				return field, 0, false
			}
			return field, j + 1, true
		case c == '!' && depth == 0 && exprEnd < 0 && j+1 < len(src) && src[j+1] != '=':
			exprEnd = j
			end := j + 1
			for end < len(src) && isIdentPart(src[end]) {
				end++
			}
			field.conversion = src[j+1 : end]
			j = end
			continue
		case c == ':' && depth == 0:
			if exprEnd < 0 {
				exprEnd = j
			}
			end := strings.IndexByte(src[j:], '}')
			if end < 0 {
				return field, 0, false
			}
			field.spec = src[j+1 : j+end]
			j += end
			continue
		}
		j++
	}
	return field, 0, false
}
