package pdf

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strings"

	"rsc.io/pdf"
)

// IsPDF sniffs data for the PDF signature.
func IsPDF(data []byte) bool {
	return http.DetectContentType(data) == "application/pdf"
}

// Extractor pulls the text out of a PDF document.
type Extractor interface {
	ExtractText(data []byte) (string, error)
}

type LocalExtractor struct{}

func NewLocalExtractor() *LocalExtractor {
	return &LocalExtractor{}
}

// ExtractText returns the text of every page, pages separated by a newline.
// Text runs sharing a baseline are joined into one line.
func (e *LocalExtractor) ExtractText(data []byte) (text string, err error) {
	// rsc.io/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	pages := make([]string, 0, doc.NumPage())
	for n := 1; n <= doc.NumPage(); n++ {
		p := doc.Page(n)
		if p.V.IsNull() {
			continue
		}
		var t string
		if runs := p.Content().Text; hasWidths(runs) {
			t = pageText(runs)
		} else {
			t = streamText(p)
		}
		if t != "" {
			pages = append(pages, t)
		}
	}
	return strings.Join(pages, "\n"), nil
}

// hasWidths reports whether the glyph runs carry advance widths. Fonts
// without /Widths (often the standard 14) yield zero-width runs at one X
// with the spaces dropped, so word breaks cannot be recovered from them.
func hasWidths(runs []pdf.Text) bool {
	for _, t := range runs {
		if t.W > 0 {
			return true
		}
	}
	return false
}

// pageText joins positioned glyph runs, breaking lines on baseline changes
// and inserting a space where the gap to the previous run is wide.
func pageText(runs []pdf.Text) string {
	var lines []string
	var line strings.Builder
	lastY := math.NaN()
	lastEnd := 0.0

	for _, t := range runs {
		if t.S == "" {
			continue
		}
		if !math.IsNaN(lastY) && math.Abs(t.Y-lastY) > t.FontSize/2 {
			lines = append(lines, strings.TrimSpace(line.String()))
			line.Reset()
		} else if line.Len() > 0 && t.X-lastEnd > t.FontSize*0.15 {
			line.WriteByte(' ')
		}
		line.WriteString(t.S)
		lastY = t.Y
		lastEnd = t.X + t.W
	}
	if line.Len() > 0 {
		lines = append(lines, strings.TrimSpace(line.String()))
	}

	out := lines[:0]
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// tjSpaceThreshold is the TJ kerning adjustment, in thousandths of an em,
// past which a word break is assumed.
const tjSpaceThreshold = -200

// streamText reads the strings shown by the page's text operators, decoded
// with the current font. Moves to a new line start a new output line.
func streamText(p pdf.Page) string {
	var lines []string
	var line strings.Builder
	var enc pdf.TextEncoding
	flush := func() {
		if s := strings.TrimSpace(line.String()); s != "" {
			lines = append(lines, s)
		}
		line.Reset()
	}
	show := func(v pdf.Value) {
		raw := v.RawString()
		if enc != nil {
			raw = enc.Decode(raw)
		}
		line.WriteString(raw)
	}

	pdf.Interpret(p.V.Key("Contents"), func(stk *pdf.Stack, op string) {
		n := stk.Len()
		args := make([]pdf.Value, n)
		for i := n - 1; i >= 0; i-- {
			args[i] = stk.Pop()
		}
		switch op {
		case "Tf":
			if n == 2 {
				enc = p.Font(args[0].Name()).Encoder()
			}
		case "Td", "TD":
			if n == 2 && args[1].Float64() != 0 {
				flush()
			} else if line.Len() > 0 {
				line.WriteByte(' ')
			}
		case "T*", "Tm", "ET":
			flush()
		case "Tj":
			if n == 1 {
				show(args[0])
			}
		case "'", "\"":
			flush()
			if n > 0 {
				show(args[n-1])
			}
		case "TJ":
			if n != 1 || args[0].Kind() != pdf.Array {
				return
			}
			arr := args[0]
			for i := 0; i < arr.Len(); i++ {
				x := arr.Index(i)
				switch x.Kind() {
				case pdf.String:
					show(x)
				case pdf.Integer, pdf.Real:
					if x.Float64() < tjSpaceThreshold {
						line.WriteByte(' ')
					}
				}
			}
		}
	})
	flush()
	return collapseSpaces(strings.Join(lines, "\n"))
}

// collapseSpaces squeezes runs of spaces within each line.
func collapseSpaces(s string) string {
	out := strings.Split(s, "\n")
	for i, l := range out {
		out[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.Join(out, "\n")
}
