package export

import (
	"io"

	"github.com/go-pdf/fpdf"
)

// Page geometry in points.
const (
	margin         = 40.0
	titleSize      = 16.0
	metaSize       = 10.0
	labelSize      = 11.0
	bodySize       = 12.0
	bodyLineHeight = 16.0
	blockGap       = 8.0
)

// PDF writes an A4 transcript: a bold title, the scenario and export time, a
// rule, then one labelled block per message with wrapped body text. Pages
// break whenever the next line would cross the bottom margin.
func PDF(w io.Writer, t Transcript) error {
	title := t.Title
	if title == "" {
		title = "Chat"
	}
	scenario := t.ScenarioTitle
	if scenario == "" {
		if t.IsDemo {
			scenario = "Demo"
		} else {
			scenario = "No scenario"
		}
	}
	author := t.Author
	if author == "" {
		author = "Demo AI"
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(false, margin)
	pdf.SetTitle(title, true)
	pdf.SetSubject("Chat Export", true)
	pdf.SetAuthor(author, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*margin
	pdf.AddPage()
	y := margin

	ensure := func(extra float64) {
		if y+extra > pageH-margin {
			pdf.AddPage()
			y = margin
		}
	}

	pdf.SetFont("Helvetica", "B", titleSize)
	pdf.SetTextColor(20, 20, 20)
	pdf.Text(margin, y, tr(title))
	y += 22

	pdf.SetFont("Helvetica", "", metaSize)
	pdf.SetTextColor(90, 90, 90)
	pdf.Text(margin, y, tr("Scenario: "+scenario))
	y += 14
	pdf.Text(margin, y, "Exported: "+t.ExportedAt.Format("Jan 2, 2006, 3:04:05 PM"))
	y += 16

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(margin, y, pageW-margin, y)
	y += 16

	for _, l := range t.Lines {
		pdf.SetFont("Helvetica", "B", labelSize)
		pdf.SetTextColor(50, 50, 50)
		ensure(labelSize + 6)
		pdf.Text(margin, y, Label(l.Sender))
		y += labelSize + 6

		pdf.SetFont("Helvetica", "", bodySize)
		pdf.SetTextColor(20, 20, 20)
		for _, line := range pdf.SplitText(tr(l.Text), contentW) {
			ensure(bodyLineHeight)
			pdf.Text(margin, y, line)
			y += bodyLineHeight
		}
		y += blockGap
	}

	return pdf.Output(w)
}
