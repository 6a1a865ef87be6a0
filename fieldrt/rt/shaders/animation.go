package shaders

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownAnimation = errors.New("shaders: unknown animation type")

// AnimationType picks the built-in field_velocity snippet spliced into the
// field-setting kernel.
type AnimationType int

const (
	Basic AnimationType = iota
	JuliaSet
	Spiral
	BlackHole
	Poiseuille
)

//go:embed snippets/basic.wgsl
var basicSnippet string

//go:embed snippets/julia_set.wgsl
var juliaSetSnippet string

//go:embed snippets/spiral.wgsl
var spiralSnippet string

//go:embed snippets/black_hole.wgsl
var blackHoleSnippet string

//go:embed snippets/poiseuille.wgsl
var poiseuilleSnippet string

var animations = []struct {
	name    string
	snippet string
}{
	Basic:      {"basic", basicSnippet},
	JuliaSet:   {"julia_set", juliaSetSnippet},
	Spiral:     {"spiral", spiralSnippet},
	BlackHole:  {"black_hole", blackHoleSnippet},
	Poiseuille: {"poiseuille", poiseuilleSnippet},
}

// AnimationTypes lists every built-in animation in declaration order.
func AnimationTypes() []AnimationType {
	out := make([]AnimationType, len(animations))
	for i := range animations {
		out[i] = AnimationType(i)
	}
	return out
}

func (a AnimationType) valid() bool { return a >= 0 && int(a) < len(animations) }

func (a AnimationType) String() string {
	if !a.valid() {
		return fmt.Sprintf("AnimationType(%d)", int(a))
	}
	return animations[a].name
}

// VelocitySnippet returns the WGSL defining field_velocity for a.
func (a AnimationType) VelocitySnippet() (string, error) {
	if !a.valid() {
		return "", fmt.Errorf("%w: %d", ErrUnknownAnimation, int(a))
	}
	return animations[a].snippet, nil
}

// ParseAnimationType accepts the snake_case names used in config files.
// Dashes and case are ignored.
func ParseAnimationType(s string) (AnimationType, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for i, a := range animations {
		if a.name == key || strings.ReplaceAll(a.name, "_", "") == key {
			return AnimationType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAnimation, s)
}

func (a AnimationType) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownAnimation, int(a))
	}
	return []byte(a.String()), nil
}

func (a *AnimationType) UnmarshalText(text []byte) error {
	v, err := ParseAnimationType(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}
