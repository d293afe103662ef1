package mailer

import (
	"bytes"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// KindButton identifies button nodes.
var KindButton = ast.NewNodeKind("Button")

var buttonOpen = []byte("[!button|")

// Button is an inline call-to-action link: [!button|Label](URL).
type Button struct {
	ast.BaseInline
	Label []byte
	URL   []byte
}

func (n *Button) Kind() ast.NodeKind { return KindButton }

func (n *Button) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Label": string(n.Label),
		"URL":   string(n.URL),
	}, nil)
}

// ButtonExtension adds the button syntax to a goldmark instance.
var ButtonExtension goldmark.Extender = buttonExtension{}

type buttonExtension struct{}

func (buttonExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithInlineParsers(util.Prioritized(buttonParser{}, 50)))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(buttonRenderer{}, 50)))
}

type buttonParser struct{}

func (buttonParser) Trigger() []byte { return []byte{'['} }

func (buttonParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	if !bytes.HasPrefix(line, buttonOpen) {
		return nil
	}

	rest := line[len(buttonOpen):]
	labelEnd := bytes.IndexByte(rest, ']')
	if labelEnd < 1 || labelEnd+1 >= len(rest) || rest[labelEnd+1] != '(' {
		return nil
	}
	target := rest[labelEnd+2:]
	urlEnd := bytes.IndexByte(target, ')')
	if urlEnd < 1 {
		return nil
	}

	block.Advance(len(buttonOpen) + labelEnd + 2 + urlEnd + 1)
	return &Button{
		Label: bytes.TrimSpace(rest[:labelEnd]),
		URL:   bytes.TrimSpace(target[:urlEnd]),
	}
}

type buttonRenderer struct{}

func (buttonRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindButton, renderButton)
}

func renderButton(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*Button)
	_, _ = w.WriteString(`<a class="button" href="`)
	_, _ = w.Write(util.EscapeHTML(util.URLEscape(n.URL, false)))
	_, _ = w.WriteString(`">`)
	_, _ = w.Write(util.EscapeHTML(n.Label))
	_, _ = w.WriteString(`</a>`)
	return ast.WalkSkipChildren, nil
}
