package content

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

const (
	highlightStyle = "nord"
	anchorClass    = "anchor"
)

// Renderer converts markdown bodies to HTML. A single Renderer is safe for
// concurrent use: goldmark keeps per-call state in the parse context.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer builds the markdown pipeline: GFM, generated heading IDs,
// headings wrapped in self-links, and chroma-highlighted fenced code.
func NewRenderer() *Renderer {
	style := styles.Get(highlightStyle)
	if style == nil {
		style = styles.Fallback
	}
	code := &codeBlockRenderer{
		style:     style,
		formatter: chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(2)),
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			gmhtml.WithUnsafe(),
			renderer.WithNodeRenderers(
				util.Prioritized(code, 100),
				util.Prioritized(&headingRenderer{}, 100),
			),
		),
	)
	return &Renderer{md: md}
}

// Render converts src to HTML.
func (r *Renderer) Render(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// RenderString renders an inline frontmatter field such as a talk abstract.
// Empty input stays empty.
func (r *Renderer) RenderString(src string) (template.HTML, error) {
	if strings.TrimSpace(src) == "" {
		return "", nil
	}
	return r.Render([]byte(src))
}

// codeBlockRenderer highlights fenced code blocks with chroma. Unknown or
// missing languages use the plaintext lexer.
type codeBlockRenderer struct {
	style     *chroma.Style
	formatter *chromahtml.Formatter
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	lexer := lexers.Get(string(n.Language(source)))
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code.String())
	if err != nil {
		return ast.WalkStop, fmt.Errorf("tokenising code block: %w", err)
	}
	if err := r.formatter.Format(w, r.style, iterator); err != nil {
		return ast.WalkStop, fmt.Errorf("highlighting code block: %w", err)
	}
	return ast.WalkSkipChildren, nil
}

// headingRenderer wraps heading text in a link to the heading's own ID so
// readers can copy section links.
type headingRenderer struct{}

func (r *headingRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindHeading, r.renderHeading)
}

func (r *headingRenderer) renderHeading(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.Heading)
	id := headingID(n)

	if entering {
		fmt.Fprintf(w, "<h%d", n.Level)
		if id != "" {
			fmt.Fprintf(w, ` id="%s"`, template.HTMLEscapeString(id))
		}
		_ = w.WriteByte('>')
		if id != "" {
			fmt.Fprintf(w, `<a class="%s" href="#%s">`, anchorClass, template.HTMLEscapeString(id))
		}
		return ast.WalkContinue, nil
	}

	if id != "" {
		_, _ = w.WriteString("</a>")
	}
	fmt.Fprintf(w, "</h%d>\n", n.Level)
	return ast.WalkContinue, nil
}

func headingID(n *ast.Heading) string {
	v, ok := n.AttributeString("id")
	if !ok {
		return ""
	}
	switch id := v.(type) {
	case []byte:
		return string(id)
	case string:
		return id
	default:
		return ""
	}
}
