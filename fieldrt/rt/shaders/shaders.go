package shaders

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

//go:embed field_common.wgsl
var FieldCommonWGSL string

//go:embed field_setting.wgsl
var FieldSettingWGSL string

//go:embed trajectory_update.wgsl
var TrajectoryUpdateWGSL string

//go:embed canvas_fade.wgsl
var CanvasFadeWGSL string

//go:embed present.wgsl
var PresentWGSL string

// InsertPoint marks where Compose splices a code snippet.
const InsertPoint = "#insert_code_here"

const includeDirective = "#include"

var (
	ErrUnknownShader      = errors.New("shaders: unknown shader")
	ErrMissingInsertPoint = errors.New("shaders: template has no insert point")
)

var sources = map[string]string{
	"field_common":      FieldCommonWGSL,
	"field_setting":     FieldSettingWGSL,
	"trajectory_update": TrajectoryUpdateWGSL,
	"canvas_fade":       CanvasFadeWGSL,
	"present":           PresentWGSL,
}

// Names lists the embedded shader names accepted by Load.
func Names() []string {
	return []string{"field_common", "field_setting", "trajectory_update", "canvas_fade", "present"}
}

// Load returns the named shader with every #include resolved.
// A leftover insert point is removed.
func Load(name string) (string, error) {
	return Compose(name, "")
}

// Compose loads the named shader, resolves includes and replaces the insert
// point with snippet. A non-empty snippet requires the template to carry an
// insert point.
func Compose(name, snippet string) (string, error) {
	src, err := resolve(name, map[string]bool{})
	if err != nil {
		return "", err
	}
	if !strings.Contains(src, InsertPoint) {
		if snippet != "" {
			return "", fmt.Errorf("%w: %s", ErrMissingInsertPoint, name)
		}
		return src, nil
	}
	return strings.Replace(src, InsertPoint, snippet, 1), nil
}

func resolve(name string, seen map[string]bool) (string, error) {
	src, ok := sources[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownShader, name)
	}
	if seen[name] {
		return "", fmt.Errorf("shaders: include cycle at %q", name)
	}
	seen[name] = true
	defer delete(seen, name)

	var b strings.Builder
	for _, line := range strings.SplitAfter(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, includeDirective) {
			b.WriteString(line)
			continue
		}
		inc := strings.Trim(strings.TrimSpace(strings.TrimPrefix(trimmed, includeDirective)), `"`)
		body, err := resolve(inc, seen)
		if err != nil {
			return "", fmt.Errorf("%s: %w", name, err)
		}
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String(), nil
}
