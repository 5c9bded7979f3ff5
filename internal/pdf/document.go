// Package pdf reads page text, text rows and embedded images from PDF files.
package pdf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is the plain text of one 1-based page.
type Page struct {
	Number int
	Text   string
}

// Document is an open PDF. It is read-only and not safe for concurrent use.
type Document struct {
	path   string
	file   *os.File
	reader *pdf.Reader
}

// Open opens the PDF at path.
func Open(path string) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("could not read PDF %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read PDF %s: %w", path, err)
	}
	return &Document{path: path, file: f, reader: r}, nil
}

// Close releases the underlying file.
func (d *Document) Close() error {
	return d.file.Close()
}

// Path returns the path the document was opened from.
func (d *Document) Path() string { return d.path }

// SourceName returns the file name, e.g. "META.pdf".
func (d *Document) SourceName() string { return filepath.Base(d.path) }

// OwnerTag returns the file name without its extension, e.g. "META".
func (d *Document) OwnerTag() string {
	name := d.SourceName()
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int { return d.reader.NumPage() }

// Pages extracts the plain text of every page. A page that fails to extract
// is returned with empty text and its error is joined into the result.
func (d *Document) Pages() ([]Page, error) {
	n := d.PageCount()
	pages := make([]Page, 0, n)
	var errs []error
	for i := 1; i <= n; i++ {
		text, err := d.pageText(i)
		if err != nil {
			errs = append(errs, err)
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, errors.Join(errs...)
}

func (d *Document) pageText(num int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("page %d: %v", num, r)
		}
	}()

	page := d.reader.Page(num)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("page %d: %w", num, err)
	}
	return text, nil
}

// Lines returns the text rows of a page, top to bottom.
func (d *Document) Lines(num int) (lines []Line, err error) {
	defer func() {
		if r := recover(); r != nil {
			lines, err = nil, fmt.Errorf("page %d rows: %v", num, r)
		}
	}()

	page := d.reader.Page(num)
	if page.V.IsNull() {
		return nil, nil
	}
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil, fmt.Errorf("page %d rows: %w", num, err)
	}

	lines = make([]Line, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, Line{Text: joinRow(row.Content), Y: float64(row.Position)})
	}
	return lines, nil
}

// joinRow concatenates text runs, inserting a space where runs are visibly
// apart.
func joinRow(runs pdf.TextHorizontal) string {
	var b strings.Builder
	var prevEnd float64
	for i, t := range runs {
		if i > 0 && t.X-prevEnd > 1 && !strings.HasPrefix(t.S, " ") {
			b.WriteByte(' ')
		}
		b.WriteString(t.S)
		prevEnd = t.X + t.W
	}
	return b.String()
}
