// Package markdown locates fenced code blocks in note content and rewrites
// their "output" companions without re-rendering the rest of the document.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// OutputLanguage is the info string of blocks holding captured run output.
const OutputLanguage = "output"

// Block is a top-level fenced code block. Start and End delimit the whole
// block, fences included, as byte offsets into the parsed content.
type Block struct {
	Language string
	Code     string
	Start    int
	End      int
}

// IsOutput reports whether b holds captured output.
func (b Block) IsOutput() bool {
	return b.Language == OutputLanguage
}

// Section is a runnable code block and the output block that directly
// follows it, if any.
type Section struct {
	Block
	Output *Block
}

var md = goldmark.New()

// Blocks returns every top-level fenced code block in document order.
func Blocks(content string) []Block {
	src := []byte(content)
	doc := md.Parser().Parse(text.NewReader(src))
	starts := lineStarts(src)

	var out []Block
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		fb, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			continue
		}
		if b, ok := toBlock(fb, src, starts); ok {
			out = append(out, b)
		}
	}
	return out
}

func toBlock(fb *ast.FencedCodeBlock, src []byte, starts []int) (Block, bool) {
	var code strings.Builder
	lines := fb.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(src))
	}

	var openLine int
	switch {
	case fb.Info != nil:
		openLine = lineOf(starts, fb.Info.Segment.Start)
	case lines.Len() > 0:
		openLine = lineOf(starts, lines.At(0).Start) - 1
	default:
		return Block{}, false
	}
	if openLine < 0 {
		return Block{}, false
	}

	closeLine := openLine + 1
	if lines.Len() > 0 {
		closeLine = lineOf(starts, lines.At(lines.Len()-1).Start) + 1
	}
	end := len(src)
	if closeLine < len(starts) {
		end = lineEnd(src, starts[closeLine])
	}

	return Block{
		Language: string(fb.Language(src)),
		Code:     code.String(),
		Start:    starts[openLine],
		End:      end,
	}, true
}

// Sections returns the runnable blocks, those with a language other than
// output, each paired with the output block immediately after it.
func Sections(content string) []Section {
	blocks := Blocks(content)
	var out []Section
	for i, b := range blocks {
		if b.IsOutput() || b.Language == "" {
			continue
		}
		s := Section{Block: b}
		if i+1 < len(blocks) && blocks[i+1].IsOutput() && onlySpace(content[b.End:blocks[i+1].Start]) {
			o := blocks[i+1]
			s.Output = &o
		}
		out = append(out, s)
	}
	return out
}

// ReplaceOutputs writes outputs[i] as the output block of the i-th section
// returned by Sections, replacing an existing block or inserting a new one.
// Sections without an entry are left as they are.
func ReplaceOutputs(content string, outputs map[int]string) string {
	var b strings.Builder
	pos := 0
	for i, s := range Sections(content) {
		out, ok := outputs[i]
		if !ok {
			continue
		}
		if s.Output != nil {
			b.WriteString(content[pos:s.Output.Start])
			b.WriteString(outputBlock(out))
			pos = s.Output.End
			continue
		}
		b.WriteString(content[pos:s.End])
		if !strings.HasSuffix(content[:s.End], "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(outputBlock(out))
		pos = s.End
	}
	b.WriteString(content[pos:])
	return b.String()
}

func outputBlock(out string) string {
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return "```" + OutputLanguage + "\n" + out + "```\n"
}

// Extract concatenates the code of the selected blocks. With neither flag
// set the content is returned unchanged.
func Extract(content string, code, output bool) string {
	if !code && !output {
		return content
	}
	var b strings.Builder
	for _, blk := range Blocks(content) {
		if (blk.IsOutput() && output) || (!blk.IsOutput() && code) {
			b.WriteString(blk.Code)
		}
	}
	return b.String()
}

// Prose returns content with every fenced block removed.
func Prose(content string) string {
	var b strings.Builder
	pos := 0
	for _, blk := range Blocks(content) {
		b.WriteString(content[pos:blk.Start])
		pos = blk.End
	}
	b.WriteString(content[pos:])
	return b.String()
}

func onlySpace(s string) bool {
	return strings.TrimSpace(s) == ""
}

func lineStarts(src []byte) []int {
	starts := []int{0}
	for i, c := range src {
		if c == '\n' && i+1 < len(src) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func lineOf(starts []int, offset int) int {
	for i := len(starts) - 1; i >= 0; i-- {
		if starts[i] <= offset {
			return i
		}
	}
	return 0
}

func lineEnd(src []byte, start int) int {
	for i := start; i < len(src); i++ {
		if src[i] == '\n' {
			return i + 1
		}
	}
	return len(src)
}
