// Package template renders message bodies. The default renderer does plain
// {{key}} substitution; stored templates may opt into the Liquid engine for
// filters and control flow.
package template

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"
)

// Renderer substitutes named variables into a message body.
type Renderer interface {
	Render(body string, vars map[string]string) (string, error)
}

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.-]+)\s*\}\}`)

// SimpleRenderer replaces {{key}} placeholders with values from the variable
// bag. Placeholders without a matching variable are left verbatim.
type SimpleRenderer struct{}

// NewSimpleRenderer creates the default substitution renderer.
func NewSimpleRenderer() *SimpleRenderer { return &SimpleRenderer{} }

// Render performs pure placeholder substitution. It never fails.
func (*SimpleRenderer) Render(body string, vars map[string]string) (string, error) {
	if body == "" || len(vars) == 0 {
		return body, nil
	}
	out := placeholderRegex.ReplaceAllStringFunc(body, func(match string) string {
		key := placeholderRegex.FindStringSubmatch(match)[1]
		if val, ok := vars[key]; ok {
			return val
		}
		return match
	})
	return out, nil
}

// LiquidRenderer renders bodies through the Liquid template language with a
// couple of mail-specific filters. Parsed templates are cached by body.
type LiquidRenderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewLiquidRenderer creates a Liquid renderer with custom filters registered.
func NewLiquidRenderer() *LiquidRenderer {
	engine := liquid.NewEngine()

	// Default value filter: {{ first_name | default: "Friend" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Title case: {{ name | titlecase }}
	engine.RegisterFilter("titlecase", func(s string) string {
		return strings.Title(strings.ToLower(s))
	})

	return &LiquidRenderer{engine: engine}
}

// Render parses (or reuses) the template and renders it with vars.
func (r *LiquidRenderer) Render(body string, vars map[string]string) (string, error) {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(body); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(body)
		if err != nil {
			return "", fmt.Errorf("parse liquid template: %w", err)
		}
		r.cache.Store(body, parsed)
		tpl = parsed
	}

	bindings := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		bindings[k] = v
	}

	out, err := tpl.RenderString(bindings)
	if err != nil {
		return "", fmt.Errorf("render liquid template: %w", err)
	}
	return out, nil
}
