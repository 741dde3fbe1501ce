package export

import (
	"regexp"
	"strings"
	"time"
)

var lineBreaks = regexp.MustCompile(`\r?\n`)

// CSV renders lines as role,text,created_at. Every cell is double-quoted
// with embedded quotes doubled, line breaks inside text become spaces, and
// rows are joined by a bare "\n" with no trailing newline.
//
// encoding/csv only quotes cells that need it, so rows are built by hand.
func CSV(lines []Line) []byte {
	var b strings.Builder
	writeRow(&b, "role", "text", "created_at")
	for _, l := range lines {
		b.WriteByte('\n')
		at := ""
		if l.CreatedAt != nil {
			at = l.CreatedAt.UTC().Format(time.RFC3339Nano)
		}
		writeRow(&b, string(l.Sender), lineBreaks.ReplaceAllString(l.Text, " "), at)
	}
	return []byte(b.String())
}

func writeRow(b *strings.Builder, cells ...string) {
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(c, `"`, `""`))
		b.WriteByte('"')
	}
}
