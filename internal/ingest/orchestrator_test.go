package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/dedup"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/describe"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/fingerprint"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/identity"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/pdf"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/storage"
)

// fakeDoc is an in-memory Document.
type fakeDoc struct {
	source    string
	pages     []pdf.Page
	pagesErr  error
	images    []pdf.Image
	imageErrs []error
}

func (d *fakeDoc) SourceName() string { return d.source }
func (d *fakeDoc) OwnerTag() string   { return strings.TrimSuffix(d.source, ".pdf") }
func (d *fakeDoc) Close() error       { return nil }

func (d *fakeDoc) Pages() ([]pdf.Page, error) { return d.pages, d.pagesErr }

func (d *fakeDoc) Images() ([]pdf.Image, []error) { return d.images, d.imageErrs }

// fakeDescriber captions every image unless its context is listed as a logo.
type fakeDescriber struct {
	mu     sync.Mutex
	calls  int
	logos  map[string]bool
	errFor map[string]error
	hook   func()
}

func (f *fakeDescriber) Describe(_ context.Context, image []byte, contextText string) (string, bool, error) {
	f.mu.Lock()
	f.calls++
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := f.errFor[string(image)]; err != nil {
		return "", false, err
	}
	if f.logos[contextText] {
		return "", false, nil
	}
	return "chart: " + contextText, true, nil
}

func (f *fakeDescriber) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// scenarioDoc is three pages with one chart on page 3.
func scenarioDoc() *fakeDoc {
	return &fakeDoc{
		source: "META.pdf",
		pages: []pdf.Page{
			{Number: 1, Text: "Revenue grew 10%"},
			{Number: 2, Text: ""},
			{Number: 3, Text: "See chart below"},
		},
		images: []pdf.Image{{
			Ref:         "META-page3-Im1",
			PageNumber:  3,
			Name:        "Im1",
			Data:        []byte("chart-bytes"),
			ContextText: "See chart below",
		}},
	}
}

type harness struct {
	o     *Orchestrator
	text  *storage.MemoryStore
	image *storage.MemoryStore
	desc  *fakeDescriber
	path  string
}

func newHarness(t *testing.T, doc *fakeDoc) *harness {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, doc.source)
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0o644))

	h := &harness{
		text:  storage.NewMemoryStore(),
		image: storage.NewMemoryStore(),
		desc:  &fakeDescriber{},
		path:  path,
	}
	o, err := New(Config{
		Text:      h.text,
		Image:     h.image,
		Describer: h.desc,
		Open:      func(string) (Document, error) { return doc, nil },
	})
	require.NoError(t, err)
	h.o = o
	return h
}

func (h *harness) run(t *testing.T) []Event {
	t.Helper()
	var events []Event
	for ev := range h.o.Ingest(context.Background(), h.path) {
		events = append(events, ev)
	}
	require.NotEmpty(t, events)
	return events
}

func messages(events []Event) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Message
	}
	return out
}

func containsMessage(events []Event, sub string) bool {
	for _, ev := range events {
		if strings.Contains(ev.Message, sub) {
			return true
		}
	}
	return false
}

var stateRank = map[State]int{
	StateStart: 0, StateHashing: 1, StateTextDedupCheck: 2, StateTextSkip: 3, StateTextWrite: 3,
	StateImageExtract: 4, StateImageDedup: 5, StateImageSkip: 6, StateImageWrite: 6, StateDone: 7, StateError: 7,
}

func TestIngest_ThreePageScenario(t *testing.T) {
	doc := scenarioDoc()
	h := newHarness(t, doc)

	events := h.run(t)

	last := events[len(events)-1]
	assert.Equal(t, StateDone, last.State)
	assert.Contains(t, last.Message, "Added 2 text chunks")
	assert.Contains(t, last.Message, "Added 1 image captions")
	require.NotNil(t, last.Report)
	assert.Equal(t, 2, last.Report.Text.Units)
	assert.Equal(t, 1, last.Report.Images.Units)

	fp := fingerprint.Document([]string{"Revenue grew 10%", "", "See chart below"})
	require.Equal(t, 2, h.text.Len())
	first, ok := h.text.Get(identity.TextID(fp, 1, 0))
	require.True(t, ok)
	assert.Equal(t, 1, first.PageNumber)
	assert.Equal(t, fp, first.ContentHash)
	second, ok := h.text.Get(identity.TextID(fp, 3, 1))
	require.True(t, ok)
	assert.Equal(t, 3, second.PageNumber)

	require.Equal(t, 1, h.image.Len())
	img, ok := h.image.Get(identity.ImageID("META", "META.pdf", 0))
	require.True(t, ok)
	assert.Equal(t, 3, img.PageNumber)
	assert.Equal(t, fingerprint.Bytes([]byte("chart-bytes")), img.ImageHash)
	assert.Equal(t, "See chart below", img.ContextText)
	assert.Equal(t, CaptionPrefix+"chart: See chart below", img.Content)
	assert.Equal(t, "META", img.OwnerTag)
}

func TestIngest_EventsFollowStateOrder(t *testing.T) {
	h := newHarness(t, scenarioDoc())

	events := h.run(t)

	assert.Equal(t, StateStart, events[0].State)
	assert.Equal(t, "Processing document: "+h.path, events[0].Message)
	for i := 1; i < len(events); i++ {
		assert.LessOrEqual(t, stateRank[events[i-1].State], stateRank[events[i].State],
			"%s event after %s", events[i].State, events[i-1].State)
	}
	for _, ev := range events[:len(events)-1] {
		assert.False(t, ev.Terminal(), "terminal event before the end: %q", ev.Message)
	}
}

func TestIngest_RerunSkipsBothDomains(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	h.run(t)
	textWrites, imageWrites, described := h.text.Writes(), h.image.Writes(), h.desc.Calls()

	events := h.run(t)

	assert.True(t, containsMessage(events, "already ingested (text)"), messages(events))
	assert.True(t, containsMessage(events, "already exists in image store"), messages(events))
	assert.Equal(t, textWrites, h.text.Writes(), "no text writes on rerun")
	assert.Equal(t, imageWrites, h.image.Writes(), "no image writes on rerun")
	assert.Equal(t, described, h.desc.Calls(), "no captioning on rerun")

	last := events[len(events)-1]
	assert.Contains(t, last.Message, "file already existed, no new ingestion needed")
	assert.Equal(t, Skipped, last.Report.Text.Kind)
	assert.Equal(t, Skipped, last.Report.Images.Kind)
	assert.Equal(t, string(dedup.TierImageFingerprint), last.Report.Images.Reason)
}

func TestIngest_IndependentDomains(t *testing.T) {
	doc := scenarioDoc()
	h := newHarness(t, doc)
	fp := fingerprint.Document([]string{"Revenue grew 10%", "", "See chart below"})
	require.NoError(t, h.text.AddUnits(context.Background(),
		[]*storage.Unit{{ContentType: storage.ContentText, SourceFile: "META.pdf", ContentHash: fp}},
		[]string{"existing"}))

	events := h.run(t)

	assert.True(t, containsMessage(events, "META.pdf already ingested (text) with 1 chunks. Skipping text ingestion."))
	assert.True(t, containsMessage(events, "Added 1 image captions"))
	assert.Contains(t, events[len(events)-1].Message, "text already existed, images processed")
	assert.Equal(t, 1, h.text.Writes(), "only the seed write")
}

func TestIngest_ImagesExistTextNew(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	require.NoError(t, h.image.AddUnits(context.Background(),
		[]*storage.Unit{{ContentType: storage.ContentImage, SourceFile: "META.pdf"}},
		[]string{"legacy"}))

	events := h.run(t)

	assert.True(t, containsMessage(events, "duplicate images detected via source_name"), messages(events))
	assert.Contains(t, events[len(events)-1].Message, "images already existed, text processed")
	assert.Equal(t, 0, h.desc.Calls())
}

func TestIngest_NonInformativeImagesDropped(t *testing.T) {
	doc := scenarioDoc()
	doc.images = append([]pdf.Image{{
		Ref: "META-page1-Im0", PageNumber: 1, Name: "Im0", Data: []byte("logo-bytes"), ContextText: "Company logo header",
	}}, doc.images...)
	h := newHarness(t, doc)
	h.desc.logos = map[string]bool{"Company logo header": true}

	events := h.run(t)

	assert.True(t, containsMessage(events, "Skipped 1 non-informative images."))
	require.Equal(t, 1, h.image.Len())
	kept, ok := h.image.Get(identity.ImageID("META", "META.pdf", 0))
	require.True(t, ok, "kept images are indexed after rejection")
	assert.Equal(t, "META-page3-Im1", kept.ImageRef)

	side, err := ReadSidecar(SidecarPath(h.path))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"META-page3-Im1": "chart: See chart below"}, side.Metadata)
	assert.Equal(t, "META.pdf", side.SourceFile)
	assert.Equal(t, "META", side.Company)
	assert.NotEmpty(t, side.IngestionTimestamp)
}

func TestIngest_AllImagesRejected(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	h.desc.logos = map[string]bool{"See chart below": true}

	events := h.run(t)

	assert.True(t, containsMessage(events, "No informative images found in PDF."))
	assert.Equal(t, 0, h.image.Len())
	_, err := os.Stat(SidecarPath(h.path))
	assert.True(t, os.IsNotExist(err))
	assert.Contains(t, events[len(events)-1].Message, "Completed ingestion for META.pdf: Added 2 text chunks.")
}

func TestIngest_MissingFile(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	path := filepath.Join(t.TempDir(), "nope.pdf")

	var events []Event
	for ev := range h.o.Ingest(context.Background(), path) {
		events = append(events, ev)
	}

	require.Len(t, events, 1)
	assert.Equal(t, "Error: File does not exist: "+path, events[0].Message)
	assert.Equal(t, StateError, events[0].State)
	require.NotNil(t, events[0].Outcome)
	assert.Equal(t, FailureSourceMissing, events[0].Outcome.Failure)
	assert.ErrorIs(t, events[0].Outcome.Err, ErrSourceMissing)
}

func TestIngest_UnreadablePathIsOpenFailure(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	path := filepath.Join(t.TempDir(), "bad\x00name.pdf")

	var events []Event
	for ev := range h.o.Ingest(context.Background(), path) {
		events = append(events, ev)
	}

	require.NotEmpty(t, events)
	assert.False(t, containsMessage(events, "File does not exist"), messages(events))
	last := events[len(events)-1]
	assert.Equal(t, StateError, last.State)
	require.NotNil(t, last.Outcome)
	assert.Equal(t, FailureOpen, last.Outcome.Failure)
	assert.NotErrorIs(t, last.Outcome.Err, ErrSourceMissing)
	assert.Equal(t, 0, h.text.Writes())
}

func TestIngest_LegacyImageStoreSkipsImages(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	require.NoError(t, h.image.AddUnits(context.Background(), []*storage.Unit{
		{ContentType: storage.ContentImage, SourceFile: "META.pdf", PageNumber: 3},
		{ContentType: storage.ContentImage, SourceFile: "META.pdf", PageNumber: 5},
	}, []string{"legacy-1", "legacy-2"}))

	events := h.run(t)

	assert.True(t, containsMessage(events, "already exists in image store"), messages(events))
	assert.Equal(t, 1, h.image.Writes(), "only the seed write")
	assert.Equal(t, 2, h.image.Len())
	assert.Equal(t, 0, h.desc.Calls())

	last := events[len(events)-1]
	require.NotNil(t, last.Report)
	assert.Equal(t, Skipped, last.Report.Images.Kind)
	assert.Equal(t, string(dedup.TierSourceName), last.Report.Images.Reason)
	assert.Equal(t, 2, h.text.Len(), "text is still ingested")
}

func TestIngest_DetectionFailureHaltsWrites(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	h.text.CountErr = errors.New("dial tcp 127.0.0.1:6334: connection refused")

	events := h.run(t)

	n := len(events)
	require.GreaterOrEqual(t, n, 2)
	assert.True(t, strings.HasPrefix(events[n-2].Message, "Error while processing PDF "+h.path+": "))
	assert.True(t, strings.HasPrefix(events[n-1].Message, "Error trace: "))
	assert.NotContains(t, events[n-1].Message, "\n")
	require.NotNil(t, events[n-1].Outcome)
	assert.Equal(t, FailureDetectionUnavailable, events[n-1].Outcome.Failure)
	assert.ErrorIs(t, events[n-1].Outcome.Err, dedup.ErrDetectionUnavailable)

	assert.Equal(t, 0, h.text.Writes())
	assert.Equal(t, 0, h.image.Writes())
	assert.False(t, containsMessage(events, "Extracting and hashing images"))
}

func TestIngest_ImageWriteFailureKeepsText(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	h.image.AddErr = errors.New("rejected batch")

	events := h.run(t)

	assert.True(t, containsMessage(events, "Added 2 text chunks"))
	assert.Equal(t, 2, h.text.Len(), "text stays committed")
	last := events[len(events)-1]
	assert.Equal(t, StateError, last.State)
	assert.Equal(t, FailureWrite, last.Outcome.Failure)
	assert.Equal(t, DomainImage, last.Outcome.Domain)
}

func TestIngest_DescriberErrorIsRunError(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	h.desc.errFor = map[string]error{"chart-bytes": errors.New("vision completion failed: 500")}

	events := h.run(t)

	last := events[len(events)-1]
	assert.Equal(t, StateError, last.State)
	assert.Equal(t, FailureDescription, last.Outcome.Failure)
	assert.Equal(t, 0, h.image.Len())
	assert.Equal(t, 2, h.text.Len())
}

func TestIngest_PartialImageFailures(t *testing.T) {
	doc := scenarioDoc()
	doc.images = append(doc.images, pdf.Image{Ref: "META-page3-Im2", PageNumber: 3, Name: "Im2", Data: []byte("cmyk")})
	doc.imageErrs = []error{&pdf.ImageError{Ref: "META-page2-Im9", Err: errors.New("no decodable image data")}}
	h := newHarness(t, doc)
	h.desc.errFor = map[string]error{"cmyk": describe.ErrUndecodable}

	events := h.run(t)

	assert.True(t, containsMessage(events, "Image META-page2-Im9 could not be extracted"))
	assert.True(t, containsMessage(events, "Image META-page3-Im2 could not be extracted"))
	assert.Equal(t, StateDone, events[len(events)-1].State)
	assert.Equal(t, 1, h.image.Len())
	assert.True(t, Summarize("META.pdf", messages(events)).Success)
}

func TestIngest_UnfingerprintableFallsBackToSourceName(t *testing.T) {
	doc := scenarioDoc()
	doc.pagesErr = errors.New("page 2: malformed stream")
	h := newHarness(t, doc)

	events := h.run(t)

	assert.True(t, containsMessage(events, "Could not fingerprint META.pdf; matching by source name."))
	_, ok := h.text.Get(identity.TextID("META.pdf", 1, 0))
	assert.True(t, ok, "ids derive from the source name")

	again := h.run(t)
	assert.True(t, containsMessage(again, "already ingested (text)"))
	assert.Equal(t, 1, h.text.Writes())
}

func TestIngest_NoTextNoImages(t *testing.T) {
	h := newHarness(t, &fakeDoc{source: "blank.pdf", pages: []pdf.Page{{Number: 1, Text: "  "}}})

	events := h.run(t)

	assert.True(t, containsMessage(events, "No text extracted from PDF."))
	assert.True(t, containsMessage(events, "No images found in PDF."))
	assert.Equal(t, "Completed ingestion for blank.pdf.", events[len(events)-1].Message)
	assert.Equal(t, 0, h.text.Writes())
}

func TestIngest_CancelStopsWithoutRollback(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.desc.hook = cancel

	var events []Event
	for ev := range h.o.Ingest(ctx, h.path) {
		events = append(events, ev)
	}

	assert.Equal(t, 2, h.text.Len(), "committed text stays")
	assert.Equal(t, 0, h.image.Writes())
	for _, ev := range events {
		assert.False(t, ev.Terminal(), "no DONE or ERROR after cancel: %q", ev.Message)
	}
}

func TestIngest_PanicBecomesErrorEvent(t *testing.T) {
	h := newHarness(t, scenarioDoc())
	h.desc.hook = func() { panic("describer exploded") }

	events := h.run(t)

	n := len(events)
	assert.Contains(t, events[n-2].Message, "panic: describer exploded")
	assert.Equal(t, FailureInternal, events[n-1].Outcome.Failure)
}

func TestIngest_ConcurrentSameDocumentWritesOnce(t *testing.T) {
	h := newHarness(t, scenarioDoc())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range h.o.Ingest(context.Background(), h.path) {
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.text.Writes())
	assert.Equal(t, 1, h.image.Writes())
	assert.Equal(t, 1, h.desc.Calls())
}

func TestNew_RequiresStoresAndDescriber(t *testing.T) {
	_, err := New(Config{Image: storage.NewMemoryStore(), Describer: &fakeDescriber{}})
	assert.Error(t, err)

	_, err = New(Config{Text: storage.NewMemoryStore(), Image: storage.NewMemoryStore()})
	assert.Error(t, err)
}
