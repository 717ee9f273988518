package template

import (
	"regexp"
	"strings"

	"pawdesk/internal/types"
)

// placeholderRe matches {{key}} markers, tolerating whitespace inside the
// braces. Keys are word characters only.
var placeholderRe = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Renderer resolves template keys against a Registry and substitutes
// placeholders. It is stateless and safe for concurrent use.
type Renderer struct {
	registry *Registry
}

// NewRenderer creates a Renderer over the given registry.
func NewRenderer(registry *Registry) *Renderer {
	return &Renderer{registry: registry}
}

// Render looks up the template for key and substitutes every {{placeholder}}
// in its title and body from vars. Placeholders with no corresponding entry
// render as empty strings; an unknown template key is the only error case.
func (r *Renderer) Render(key types.TemplateKey, vars map[string]string) (types.RenderedMessage, error) {
	tpl, err := r.registry.Get(key)
	if err != nil {
		return types.RenderedMessage{}, err
	}
	return types.RenderedMessage{
		Title: substitute(tpl.Title, vars),
		Body:  substitute(tpl.Body, vars),
	}, nil
}

// substitute replaces all placeholder markers in s with values from vars.
func substitute(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		return vars[name]
	})
}
