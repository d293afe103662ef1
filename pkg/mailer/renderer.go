package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"sync"
	texttemplate "text/template"

	"github.com/yuin/goldmark"
)

// Rendered is the output of Renderer.Render.
type Rendered struct {
	Metadata map[string]any
	HTML     string
	// Text is the executed markdown before HTML conversion.
	Text string
}

// Subject returns the "Subject" frontmatter key, or "".
func (r *Rendered) Subject() string {
	s, _ := r.Metadata["Subject"].(string)
	return s
}

type parsedTemplate struct {
	meta map[string]any
	body *texttemplate.Template
}

// Renderer turns markdown templates into HTML emails.
// Parsed templates and layouts are cached for the renderer's lifetime.
type Renderer struct {
	fsys      fs.FS
	md        goldmark.Markdown
	layoutDir string

	mu        sync.RWMutex
	templates map[string]*parsedTemplate
	layouts   map[string]*template.Template
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLayoutDir sets the directory layouts are read from. Default "layouts".
func WithLayoutDir(dir string) RendererOption {
	return func(r *Renderer) {
		if dir != "" {
			r.layoutDir = dir
		}
	}
}

// NewRenderer reads templates from the root of fsys and layouts from its
// layouts directory.
func NewRenderer(fsys fs.FS, opts ...RendererOption) *Renderer {
	r := &Renderer{
		fsys:      fsys,
		layoutDir: "layouts",
		md:        goldmark.New(goldmark.WithExtensions(ButtonExtension)),
		templates: make(map[string]*parsedTemplate),
		layouts:   make(map[string]*template.Template),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render executes the named template with data and wraps it in layout.
// The layout receives .Content (the HTML body) and .Metadata.
func (r *Renderer) Render(layout, name string, data any) (*Rendered, error) {
	tpl, err := r.template(name)
	if err != nil {
		return nil, err
	}

	var md bytes.Buffer
	if err := tpl.body.Execute(&md, data); err != nil {
		return nil, fmt.Errorf("%w: execute %s: %v", ErrRenderFailed, name, err)
	}

	var body bytes.Buffer
	if err := r.md.Convert(md.Bytes(), &body); err != nil {
		return nil, fmt.Errorf("%w: markdown %s: %v", ErrRenderFailed, name, err)
	}

	lt, err := r.layout(layout)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	err = lt.Execute(&out, map[string]any{
		"Content":  template.HTML(body.String()), //nolint:gosec // body is rendered from trusted templates
		"Metadata": tpl.meta,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: layout %s: %v", ErrRenderFailed, layout, err)
	}

	return &Rendered{Metadata: tpl.meta, HTML: out.String(), Text: md.String()}, nil
}

func (r *Renderer) template(name string) (*parsedTemplate, error) {
	r.mu.RLock()
	tpl, ok := r.templates[name]
	r.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	raw, err := fs.ReadFile(r.fsys, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	parsed, err := ParseTemplate(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	body, err := texttemplate.New(name).Parse(parsed.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrRenderFailed, name, err)
	}
	tpl = &parsedTemplate{meta: parsed.Metadata, body: body}

	r.mu.Lock()
	if cached, ok := r.templates[name]; ok {
		tpl = cached
	} else {
		r.templates[name] = tpl
	}
	r.mu.Unlock()
	return tpl, nil
}

func (r *Renderer) layout(name string) (*template.Template, error) {
	r.mu.RLock()
	lt, ok := r.layouts[name]
	r.mu.RUnlock()
	if ok {
		return lt, nil
	}

	raw, err := fs.ReadFile(r.fsys, path.Join(r.layoutDir, name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLayoutNotFound, name)
	}
	lt, err = template.New(name).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse layout %s: %v", ErrRenderFailed, name, err)
	}

	r.mu.Lock()
	if cached, ok := r.layouts[name]; ok {
		lt = cached
	} else {
		r.layouts[name] = lt
	}
	r.mu.Unlock()
	return lt, nil
}
