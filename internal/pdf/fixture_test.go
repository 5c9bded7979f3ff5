package pdf

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// fixturePage describes one page of a generated PDF.
type fixturePage struct {
	Content  string // Raw content stream operators
	HasImage bool   // Expose the shared JPEG as /Im1
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for x := 0; x < 16; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{uint8(x * 16), uint8(y * 32), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

// writeFixture writes a minimal uncompressed PDF with a Helvetica font and
// returns its path.
func writeFixture(t *testing.T, name string, pages []fixturePage) string {
	t.Helper()

	jpg := testJPEG(t)
	const (
		catalogObj = 1
		pagesObj   = 2
		fontObj    = 3
		imageObj   = 4
		firstPage  = 5
	)

	objs := map[int]string{}
	objs[fontObj] = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>"
	objs[imageObj] = fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width 16 /Height 8 /ColorSpace /DeviceRGB "+
		"/BitsPerComponent 8 /Filter /DCTDecode /Length %d >>\nstream\n%s\nendstream", len(jpg), jpg)

	kids := ""
	for i, p := range pages {
		pageNum := firstPage + 2*i
		contentNum := pageNum + 1
		kids += fmt.Sprintf("%d 0 R ", pageNum)

		resources := fmt.Sprintf("/Font << /F1 %d 0 R >>", fontObj)
		if p.HasImage {
			resources += fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", imageObj)
		}
		objs[pageNum] = fmt.Sprintf("<< /Type /Page /Parent %d 0 R /MediaBox [0 0 612 792] "+
			"/Resources << %s >> /Contents %d 0 R >>", pagesObj, resources, contentNum)
		objs[contentNum] = fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(p.Content), p.Content)
	}
	objs[catalogObj] = fmt.Sprintf("<< /Type /Catalog /Pages %d 0 R >>", pagesObj)
	objs[pagesObj] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, len(pages))

	size := firstPage + 2*len(pages)
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, size)
	for n := 1; n < size; n++ {
		offsets[n] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", n, objs[n])
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", size)
	for n := 1; n < size; n++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[n])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, catalogObj, xref)

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// threePageFixture is a 3-page document with text on pages 1 and 3 and one
// image on page 3 drawn just below "See chart below".
func threePageFixture(t *testing.T) string {
	return writeFixture(t, "META.pdf", []fixturePage{
		{Content: "BT /F1 12 Tf 72 700 Td (Revenue grew 10%) Tj ET"},
		{Content: ""},
		{
			Content:  "BT /F1 12 Tf 72 520 Td (See chart below) Tj ET\nq 200 0 0 100 72 400 cm /Im1 Do Q",
			HasImage: true,
		},
	})
}
