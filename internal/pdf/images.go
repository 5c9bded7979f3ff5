package pdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Image is one embedded image with the text around it.
type Image struct {
	Ref         string // "{stem}-page{N}-{name}"
	PageNumber  int
	Name        string // XObject resource name
	Data        []byte
	FileType    string // "jpg", "png", ...
	Width       int
	Height      int
	Box         Box // Placement on the page; zero when unknown
	ContextText string
}

// ImageError is a failure confined to one image.
type ImageError struct {
	Ref string
	Err error
}

func (e *ImageError) Error() string { return fmt.Sprintf("image %s: %v", e.Ref, e.Err) }

func (e *ImageError) Unwrap() error { return e.Err }

var errNoImageData = errors.New("no decodable image data")

func imageRef(sourceName string, page int, name string) string {
	stem := strings.TrimSuffix(sourceName, ".pdf")
	return fmt.Sprintf("%s-page%d-%s", stem, page, name)
}

// matrix is a PDF transformation [a b c d e f].
type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// multiply returns m followed by n.
func (m matrix) multiply(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// unitBox maps the unit square, where images are drawn, through m.
func (m matrix) unitBox() Box {
	xs := [4]float64{m[4], m[0] + m[4], m[2] + m[4], m[0] + m[2] + m[4]}
	ys := [4]float64{m[5], m[1] + m[5], m[3] + m[5], m[1] + m[3] + m[5]}
	b := Box{MinX: xs[0], MaxX: xs[0], MinY: ys[0], MaxY: ys[0]}
	for i := 1; i < 4; i++ {
		b.MinX, b.MaxX = min(b.MinX, xs[i]), max(b.MaxX, xs[i])
		b.MinY, b.MaxY = min(b.MinY, ys[i]), max(b.MaxY, ys[i])
	}
	return b
}

type placement struct {
	name string
	box  Box
}

type imageKey struct {
	page int
	name string
}

var disableConfigDir sync.Once

// Images returns every embedded image in page order with its nearby text.
// Failures are collected per image or per page and never stop the others.
func (d *Document) Images() ([]Image, []error) {
	var errs []error

	raw, err := d.extractRaw()
	if err != nil {
		errs = append(errs, err)
	}

	var images []Image
	for num := 1; num <= d.PageCount(); num++ {
		placed, err := d.placements(num)
		if err != nil {
			errs = append(errs, err)
		}

		var lines []Line
		if len(placed) > 0 {
			if lines, err = d.Lines(num); err != nil {
				errs = append(errs, err)
			}
		}

		for _, p := range placed {
			key := imageKey{num, p.name}
			img, ok := raw[key]
			if !ok {
				errs = append(errs, &ImageError{Ref: imageRef(d.SourceName(), num, p.name), Err: errNoImageData})
				continue
			}
			delete(raw, key)
			img.Box = p.box
			img.ContextText = NearbyText(lines, p.box)
			images = append(images, img)
		}

		// Images drawn through form XObjects have no direct placement.
		var rest []Image
		for key, img := range raw {
			if key.page == num {
				rest = append(rest, img)
				delete(raw, key)
			}
		}
		sort.Slice(rest, func(i, j int) bool { return rest[i].Name < rest[j].Name })
		images = append(images, rest...)
	}
	return images, errs
}

// extractRaw decodes image streams with pdfcpu, keyed by page and resource name.
func (d *Document) extractRaw() (out map[imageKey]Image, err error) {
	out = make(map[imageKey]Image)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract images from %s: %v", d.SourceName(), r)
		}
	}()

	disableConfigDir.Do(api.DisableConfigDir)

	f, err := os.Open(d.path)
	if err != nil {
		return out, fmt.Errorf("extract images: %w", err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	src := d.SourceName()
	digest := func(img model.Image, _ bool, _ int) error {
		if img.Reader == nil {
			return nil
		}
		data, err := io.ReadAll(img)
		if err != nil {
			// Keep going; the placement pass reports it as missing.
			return nil
		}
		key := imageKey{img.PageNr, img.Name}
		if _, dup := out[key]; dup {
			return nil
		}
		out[key] = Image{
			Ref:        imageRef(src, img.PageNr, img.Name),
			PageNumber: img.PageNr,
			Name:       img.Name,
			Data:       data,
			FileType:   img.FileType,
			Width:      img.Width,
			Height:     img.Height,
		}
		return nil
	}

	if err := api.ExtractImages(f, nil, digest, conf); err != nil {
		return out, fmt.Errorf("extract images from %s: %w", src, err)
	}
	return out, nil
}

// placements interprets a page's content streams and records where each
// image XObject is drawn. Repeated draws of one image keep the first.
func (d *Document) placements(num int) (out []placement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d content: %v", num, r)
		}
	}()

	page := d.reader.Page(num)
	if page.V.IsNull() {
		return nil, nil
	}
	xobjects := page.Resources().Key("XObject")

	contents := page.V.Key("Contents")
	var streams []pdf.Value
	if contents.Kind() == pdf.Array {
		for i := 0; i < contents.Len(); i++ {
			streams = append(streams, contents.Index(i))
		}
	} else if contents.Kind() == pdf.Stream {
		streams = append(streams, contents)
	}

	ctm := identity
	var saved []matrix
	seen := make(map[string]bool)

	// The state carries across streams; they form one content stream.
	for _, strm := range streams {
		pdf.Interpret(strm, func(stk *pdf.Stack, op string) {
			n := stk.Len()
			args := make([]pdf.Value, n)
			for i := n - 1; i >= 0; i-- {
				args[i] = stk.Pop()
			}

			switch op {
			case "q":
				saved = append(saved, ctm)
			case "Q":
				if len(saved) > 0 {
					ctm = saved[len(saved)-1]
					saved = saved[:len(saved)-1]
				}
			case "cm":
				if n != 6 {
					return
				}
				var m matrix
				for i := range m {
					m[i] = args[i].Float64()
				}
				ctm = m.multiply(ctm)
			case "Do":
				if n != 1 {
					return
				}
				name := args[0].Name()
				if seen[name] || xobjects.Key(name).Key("Subtype").Name() != "Image" {
					return
				}
				seen[name] = true
				out = append(out, placement{name: name, box: ctm.unitBox()})
			}
		})
	}
	return out, nil
}
