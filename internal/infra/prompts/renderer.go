// Package prompts renders named system prompt templates.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"go.uber.org/zap"

	"mcpchat/internal/domain"
)

const templateExt = ".tmpl"

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// Dir is the directory holding *.tmpl files. A template named
	// "concise" lives at <dir>/concise.tmpl.
	Dir    string
	Logger *zap.Logger
}

// Renderer loads prompt templates from a directory and renders them against
// the active tool list. Templates use Go text/template syntax with the
// sprig function set.
type Renderer struct {
	templates map[string]*template.Template
	logger    *zap.Logger
}

// templateData is the root object a template executes against.
type templateData struct {
	Tools     []domain.Tool
	ToolNames []string
	Servers   []string
}

// NewRenderer parses every template in the directory. A missing directory
// yields an empty renderer rather than an error, since prompt templates are
// optional.
func NewRenderer(opts RendererOptions) (*Renderer, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{
		templates: make(map[string]*template.Template),
		logger:    logger.Named("prompts"),
	}
	if opts.Dir == "" {
		return r, nil
	}

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}
		return nil, fmt.Errorf("read prompt directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != templateExt {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), templateExt)
		raw, err := os.ReadFile(filepath.Join(opts.Dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read prompt template %q: %w", name, err)
		}
		tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(string(raw))
		if err != nil {
			return nil, fmt.Errorf("parse prompt template %q: %w", name, err)
		}
		r.templates[name] = tmpl
	}

	r.logger.Debug("prompt templates loaded", zap.Int("count", len(r.templates)))
	return r, nil
}

// Names lists the loaded template names.
func (r *Renderer) Names() []string {
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// Render executes the named template against the tool list.
func (r *Renderer) Render(name string, tools []domain.Tool) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", domain.E(domain.CodeNotFound, "prompts.Render",
			fmt.Sprintf("prompt template %q is not defined", name), nil)
	}

	data := templateData{Tools: tools}
	seen := make(map[string]struct{})
	for _, tool := range tools {
		data.ToolNames = append(data.ToolNames, tool.WireName)
		if _, ok := seen[tool.Server]; !ok {
			seen[tool.Server] = struct{}{}
			data.Servers = append(data.Servers, tool.Server)
		}
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", domain.E(domain.CodeInternal, "prompts.Render",
			fmt.Sprintf("render prompt template %q", name), err)
	}
	return buf.String(), nil
}
