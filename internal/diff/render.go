package diff

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/fatih/color"
)

// Renderer writes diffs for a terminal, syntax highlighting code lines when
// color output is enabled
type Renderer struct {
	style     *chroma.Style
	formatter chroma.Formatter
	noColor   bool
}

var (
	headerColor = color.New(color.Bold)
	hunkColor   = color.New(color.FgCyan)
	addColor    = color.New(color.FgGreen, color.Bold)
	delColor    = color.New(color.FgRed, color.Bold)
)

// NewRenderer creates a renderer. styleName falls back to chroma's default
// style when unknown; noColor disables all escapes.
func NewRenderer(styleName string, noColor bool) *Renderer {
	style := styles.Get(styleName)
	if style == nil {
		style = styles.Fallback
	}
	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
	return &Renderer{style: style, formatter: formatter, noColor: noColor || color.NoColor}
}

// Render writes d followed by its stats line
func (r *Renderer) Render(w io.Writer, d *Diff) error {
	if d.Empty() {
		_, err := fmt.Fprintf(w, "%s: no changes\n", d.Name)
		return err
	}
	if r.noColor {
		if _, err := io.WriteString(w, d.Unified); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "%s %s\n", d.Name, d.Stats)
		return err
	}

	lexer := lexerFor(d.Name)
	sc := bufio.NewScanner(strings.NewReader(d.Unified))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		var out string
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			out = headerColor.Sprint(line)
		case strings.HasPrefix(line, "@@"):
			out = hunkColor.Sprint(line)
		case strings.HasPrefix(line, "+"):
			out = addColor.Sprint("+") + r.highlight(lexer, line[1:])
		case strings.HasPrefix(line, "-"):
			out = delColor.Sprint("-") + r.highlight(lexer, line[1:])
		case strings.HasPrefix(line, " "):
			out = " " + r.highlight(lexer, line[1:])
		default:
			out = line
		}
		if _, err := fmt.Fprintln(w, out); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%s %s %s\n", d.Name,
		addColor.Sprintf("+%d", d.Stats.Insertions), delColor.Sprintf("-%d", d.Stats.Deletions))
	return err
}

// highlight colors a single line of code; it returns the line unchanged
// when there is no lexer or tokenizing fails
func (r *Renderer) highlight(lexer chroma.Lexer, code string) string {
	if lexer == nil || code == "" {
		return code
	}
	it, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf bytes.Buffer
	if err := r.formatter.Format(&buf, r.style, it); err != nil {
		return code
	}
	return strings.TrimRight(buf.String(), "\n")
}

func lexerFor(name string) chroma.Lexer {
	lexer := lexers.Match(name)
	if lexer == nil {
		if ext := filepath.Ext(name); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer != nil {
		lexer = chroma.Coalesce(lexer)
	}
	return lexer
}
