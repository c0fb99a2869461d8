package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/width"

	"github.com/iho/clinicalledger/internal/domain"
)

// PrintOptions controls the page geometry of the print format.
type PrintOptions struct {
	// PageLines is the number of lines per page including header and footer.
	PageLines int
	// Columns is the line width in display columns.
	Columns int
}

const (
	defaultPageLines = 60
	defaultColumns   = 80
	minPageLines     = 10
	minColumns       = 40

	headerLines = 4 // title, first visit line, rule, column heads
	footerLines = 2 // blank, page number

	dateCol    = 12
	elapsedCol = 8
	versionCol = 5
)

// PrintEncoder renders the document as paginated plain text. Pages are
// separated by form feeds and carry a header and a page footer.
type PrintEncoder struct {
	opts PrintOptions
}

// NewPrintEncoder creates a new PrintEncoder. Out-of-range options fall back
// to a 60 line, 80 column page.
func NewPrintEncoder(opts PrintOptions) *PrintEncoder {
	if opts.PageLines < minPageLines {
		opts.PageLines = defaultPageLines
	}
	if opts.Columns < minColumns {
		opts.Columns = defaultColumns
	}
	return &PrintEncoder{opts: opts}
}

func (e *PrintEncoder) Format() domain.ExportFormat { return domain.ExportFormatPrint }
func (e *PrintEncoder) ContentType() string         { return "text/plain; charset=utf-8" }
func (e *PrintEncoder) FileExtension() string       { return "txt" }

// Encode lays out all records, then splits them into pages.
func (e *PrintEncoder) Encode(w io.Writer, doc *domain.LedgerDocument) error {
	body := e.body(doc)
	perPage := e.opts.PageLines - headerLines - footerLines

	pages := (len(body) + perPage - 1) / perPage
	if pages == 0 {
		pages = 1
	}

	bw := bufio.NewWriter(w)
	for p := 0; p < pages; p++ {
		if p > 0 {
			bw.WriteString("\f")
		}
		for _, line := range e.header(doc) {
			writeLine(bw, line)
		}

		lo, hi := p*perPage, min((p+1)*perPage, len(body))
		for _, line := range body[lo:hi] {
			writeLine(bw, line)
		}
		for i := hi - lo; i < perPage; i++ {
			writeLine(bw, "")
		}

		writeLine(bw, "")
		writeLine(bw, center(fmt.Sprintf("Page %d/%d", p+1, pages), e.opts.Columns))
	}

	return bw.Flush()
}

func writeLine(w *bufio.Writer, line string) {
	w.WriteString(strings.TrimRight(line, " "))
	w.WriteByte('\n')
}

func (e *PrintEncoder) header(doc *domain.LedgerDocument) []string {
	first := "-"
	if doc.FirstVisitDate != nil {
		first = doc.FirstVisitDate.Format(domain.DateLayout)
	}

	title := "TREATMENT RECORD  Patient: " + doc.PatientID
	info := fmt.Sprintf("First visit: %s   Generated: %s", first, doc.GeneratedAt.UTC().Format(time.RFC3339))

	return []string{
		title,
		info,
		strings.Repeat("=", e.opts.Columns),
		padRight("Date", dateCol) + padRight("Elapsed", elapsedCol) + padRight("Ver", versionCol) + "Record",
	}
}

func (e *PrintEncoder) body(doc *domain.LedgerDocument) []string {
	if len(doc.Records) == 0 {
		return []string{"No entries recorded."}
	}

	indent := dateCol + elapsedCol + versionCol
	textWidth := e.opts.Columns - indent
	pad := strings.Repeat(" ", indent)

	var lines []string
	for i, r := range doc.Records {
		if i > 0 {
			lines = append(lines, strings.Repeat("-", e.opts.Columns))
		}

		var text []string
		text = append(text, wrap(r.Content, textWidth)...)
		if len(r.TherapyMethods) > 0 {
			labels := make([]string, 0, len(r.TherapyMethods))
			for _, m := range r.TherapyMethods {
				labels = append(labels, m.Label)
			}
			text = append(text, wrap("Methods: "+strings.Join(labels, ", "), textWidth)...)
		}
		if len(r.Measurements) > 0 {
			parts := make([]string, 0, len(r.Measurements))
			for _, m := range r.Measurements {
				parts = append(parts, m.Name+"="+m.Value.String())
			}
			text = append(text, wrap("Measurements: "+strings.Join(parts, ", "), textWidth)...)
		}
		if r.LastAmendedAt != nil {
			text = append(text, "Amended: "+r.LastAmendedAt.UTC().Format(time.RFC3339))
		}
		for _, ev := range r.Audit {
			line := fmt.Sprintf("[v%d %s %s %s]", ev.NewVersion, ev.Action, ev.ActorID, ev.Timestamp.UTC().Format(time.RFC3339))
			text = append(text, wrap(line, textWidth)...)
			if ev.Reason != "" {
				text = append(text, wrap("  Reason: "+ev.Reason, textWidth)...)
			}
		}

		lines = append(lines,
			padRight(r.Date.Format(domain.DateLayout), dateCol)+
				padRight(r.Annotation.Marker(), elapsedCol)+
				padRight(fmt.Sprintf("v%d", r.Version), versionCol)+
				text[0])
		for _, t := range text[1:] {
			lines = append(lines, pad+t)
		}
	}
	return lines
}

// runeWidth returns the display columns of r.
func runeWidth(r rune) int {
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	default:
		return 1
	}
}

// wrap breaks s into lines of at most cols display columns, honouring
// embedded newlines. It never returns an empty slice.
func wrap(s string, cols int) []string {
	var out []string
	for _, para := range strings.Split(s, "\n") {
		var (
			line strings.Builder
			w    int
		)
		for _, r := range strings.TrimRight(para, "\r") {
			rw := runeWidth(r)
			if w+rw > cols && w > 0 {
				out = append(out, line.String())
				line.Reset()
				w = 0
			}
			line.WriteRune(r)
			w += rw
		}
		out = append(out, line.String())
	}
	return out
}

func padRight(s string, cols int) string {
	w := domain.DisplayWidth(s)
	if w >= cols {
		return s + " "
	}
	return s + strings.Repeat(" ", cols-w)
}

func center(s string, cols int) string {
	w := domain.DisplayWidth(s)
	if w >= cols {
		return s
	}
	return strings.Repeat(" ", (cols-w)/2) + s
}
