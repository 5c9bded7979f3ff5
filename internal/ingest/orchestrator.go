// Package ingest runs one document through fingerprinting, duplicate
// detection, segmentation, image description and the store writes, and
// reports each step as an ordered stream of progress events.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/dedup"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/describe"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/fingerprint"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/identity"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/lock"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/metrics"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/pdf"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/segment"
	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/storage"
)

// DefaultBuffer is the event channel capacity.
const DefaultBuffer = 16

// CaptionPrefix is prepended to captions to form the embedded image content.
const CaptionPrefix = "This is an image with the caption: "

// Config wires an Orchestrator. Text, Image and Describer are required.
type Config struct {
	Text      storage.Collection
	Image     storage.Collection
	Describer describe.Describer

	Open      Opener             // OpenPDF when nil
	Segmenter *segment.Segmenter // 1000/100 approximate tokens when nil
	Detector  *dedup.Detector
	Locker    lock.Locker // In-process locks when nil
	Logger    *slog.Logger
	Buffer    int
	Now       func() time.Time

	// NoSidecar disables the metadata_{source}.json audit file.
	NoSidecar bool
}

// Orchestrator ingests documents. It is safe for concurrent use; each call
// to Ingest runs independently.
type Orchestrator struct {
	text      storage.Collection
	image     storage.Collection
	describer describe.Describer
	open      Opener
	segmenter *segment.Segmenter
	detector  *dedup.Detector
	locker    lock.Locker
	logger    *slog.Logger
	buffer    int
	now       func() time.Time
	noSidecar bool
}

// New creates an Orchestrator from cfg, filling in defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Text == nil || cfg.Image == nil {
		return nil, fmt.Errorf("text and image collections are required")
	}
	if cfg.Describer == nil {
		return nil, fmt.Errorf("describer is required")
	}

	o := &Orchestrator{
		text:      cfg.Text,
		image:     cfg.Image,
		describer: cfg.Describer,
		open:      cfg.Open,
		segmenter: cfg.Segmenter,
		detector:  cfg.Detector,
		locker:    cfg.Locker,
		logger:    cfg.Logger,
		buffer:    cfg.Buffer,
		now:       cfg.Now,
		noSidecar: cfg.NoSidecar,
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.open == nil {
		o.open = OpenPDF
	}
	if o.segmenter == nil {
		o.segmenter = segment.New(segment.DefaultChunkTokens, segment.DefaultOverlapTokens, nil)
	}
	if o.detector == nil {
		o.detector = dedup.New(o.logger)
	}
	if o.locker == nil {
		o.locker = lock.NewLocalLocker()
	}
	if o.buffer <= 0 {
		o.buffer = DefaultBuffer
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// Ingest processes the document at path. Events arrive in state order and
// the channel is closed after the last one, which is a DONE event or an
// ERROR event. Cancelling ctx stops emission and further writes; writes
// already made are kept.
func (o *Orchestrator) Ingest(ctx context.Context, path string) <-chan Event {
	out := make(chan Event, o.buffer)
	go func() {
		defer close(out)
		r := &run{o: o, ctx: ctx, path: path, out: out, started: o.now()}
		r.finish(r.safeExecute())
	}()
	return out
}

// run is the state of one Ingest call. Only the producer goroutine touches it.
type run struct {
	o       *Orchestrator
	ctx     context.Context
	path    string
	out     chan<- Event
	started time.Time

	source string
	owner  string
	fp     string
	report Report
}

func (r *run) send(ev Event) error {
	if r.ctx.Err() != nil {
		return errStopped
	}
	ev.Time = r.o.now()
	select {
	case r.out <- ev:
		return nil
	case <-r.ctx.Done():
		return errStopped
	}
}

func (r *run) emitf(state State, format string, args ...any) error {
	return r.send(Event{State: state, Message: fmt.Sprintf(format, args...)})
}

func (r *run) conclude(state State, out Outcome, format string, args ...any) error {
	return r.send(Event{State: state, Message: fmt.Sprintf(format, args...), Outcome: &out})
}

func (r *run) safeExecute() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fail("", FailureInternal, errors.Errorf("panic: %v", rec))
		}
	}()
	return r.execute()
}

func (r *run) execute() error {
	if _, err := os.Stat(r.path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fail("", FailureOpen, errors.Wrap(err, "stat document"))
		}
		out := Outcome{Kind: Failed, Failure: FailureSourceMissing, Err: ErrSourceMissing}
		if err := r.conclude(StateError, out, "Error: File does not exist: %s", r.path); err != nil {
			return err
		}
		return errMissingReported
	}

	if err := r.emitf(StateStart, "Processing document: %s", r.path); err != nil {
		return err
	}
	doc, err := r.o.open(r.path)
	if err != nil {
		return fail("", FailureOpen, err)
	}
	defer doc.Close()
	r.source, r.owner = doc.SourceName(), doc.OwnerTag()

	pages, err := r.hash(doc)
	if err != nil {
		return err
	}
	if err := r.ingestText(pages); err != nil {
		return err
	}
	if err := r.ingestImages(doc); err != nil {
		return err
	}
	return r.done()
}

// identityKey is the document fingerprint, or the source name when the
// document could not be fingerprinted.
func (r *run) identityKey() string {
	if r.fp != "" {
		return r.fp
	}
	return r.source
}

func (r *run) criteria(imageHashes []string) dedup.Criteria {
	return dedup.Criteria{SourceName: r.source, DocumentFingerprint: r.fp, ImageFingerprints: imageHashes}
}

func (r *run) hash(doc Document) ([]pdf.Page, error) {
	pages, err := doc.Pages()
	if err != nil {
		r.o.logger.Warn("text extraction failed, matching by source name", "source", r.source, "error", err)
		r.fp = ""
		return pages, r.emitf(StateHashing, "Could not fingerprint %s; matching by source name.", r.source)
	}

	texts := make([]string, len(pages))
	for i, p := range pages {
		texts[i] = p.Text
	}
	r.fp = fingerprint.Document(texts)
	r.o.logger.Debug("document fingerprinted", "source", r.source, "fingerprint", r.fp)
	return pages, r.emitf(StateHashing, "Computed content fingerprint for %s: %s", r.source, r.fp)
}

func (r *run) acquire(domain Domain) (func(), error) {
	unlock, err := r.o.locker.Lock(r.ctx, string(domain)+":"+r.identityKey())
	if err != nil {
		if r.ctx.Err() != nil {
			return nil, errStopped
		}
		return nil, fail(domain, FailureLock, err)
	}
	return unlock, nil
}

// storeErr maps a store failure to a step failure, or to a stop when the
// caller cancelled.
func (r *run) storeErr(domain Domain, kind FailureKind, err error) error {
	if r.ctx.Err() != nil {
		return errStopped
	}
	return fail(domain, kind, err)
}

func (r *run) ingestText(pages []pdf.Page) error {
	unlock, err := r.acquire(DomainText)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.emitf(StateTextDedupCheck, "Checking text store for %s...", r.source); err != nil {
		return err
	}
	match, err := r.o.detector.Text(r.ctx, r.o.text, r.criteria(nil))
	if err != nil {
		return r.storeErr(DomainText, FailureDetectionUnavailable, err)
	}
	if match.Exists {
		r.report.Text = Outcome{Domain: DomainText, Kind: Skipped, Units: len(match.Units), Reason: string(match.Tier)}
		metrics.DomainSkippedTotal.WithLabelValues(string(DomainText), string(match.Tier)).Inc()
		return r.conclude(StateTextSkip, r.report.Text,
			"%s already ingested (text) with %d chunks. Skipping text ingestion.", r.source, len(match.Units))
	}
	return r.writeText(pages)
}

func (r *run) writeText(pages []pdf.Page) error {
	var nonBlank []segment.Page
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			nonBlank = append(nonBlank, segment.Page{Number: p.Number, Text: p.Text})
		}
	}

	var chunks []segment.Chunk
	if len(nonBlank) > 0 {
		if err := r.emitf(StateTextWrite, "Extracted %d text segments from PDF.", len(nonBlank)); err != nil {
			return err
		}
		var err error
		if chunks, err = r.o.segmenter.Segment(nonBlank); err != nil {
			return fail(DomainText, FailureSegmentation, err)
		}
	}
	if len(chunks) == 0 {
		r.report.Text = Outcome{Domain: DomainText, Kind: Success}
		return r.conclude(StateTextWrite, r.report.Text, "No text extracted from PDF.")
	}

	now := r.o.now()
	units := make([]*storage.Unit, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		units[i] = &storage.Unit{
			Content:     c.Content,
			ContentType: storage.ContentText,
			SourceFile:  r.source,
			OwnerTag:    r.owner,
			PageNumber:  c.PageNumber,
			UnitIndex:   c.Index,
			ContentHash: r.fp,
			IngestedAt:  now,
		}
		ids[i] = identity.TextID(r.identityKey(), c.PageNumber, c.Index)
	}

	if r.ctx.Err() != nil {
		return errStopped
	}
	if err := r.o.text.AddUnits(r.ctx, units, ids); err != nil {
		return r.storeErr(DomainText, FailureWrite, err)
	}
	metrics.UnitsWrittenTotal.WithLabelValues(string(DomainText)).Add(float64(len(units)))
	r.o.logger.Info("text ingested", "source", r.source, "chunks", len(units))

	r.report.Text = Outcome{Domain: DomainText, Kind: Success, Units: len(units)}
	return r.conclude(StateTextWrite, r.report.Text,
		"Added %d text chunks from %s into the text vector store.", len(units), r.source)
}

func (r *run) ingestImages(doc Document) error {
	if err := r.emitf(StateImageExtract, "Extracting and hashing images from %s...", r.source); err != nil {
		return err
	}

	images, errs := doc.Images()
	for _, e := range errs {
		r.o.logger.Warn("image extraction failed", "source", r.source, "error", e)
		var ie *pdf.ImageError
		if errors.As(e, &ie) {
			if err := r.emitf(StateImageExtract, "Image %s could not be extracted: %v", ie.Ref, ie.Err); err != nil {
				return err
			}
			continue
		}
		if err := r.emitf(StateImageExtract, "Some images in %s could not be located: %v", r.source, e); err != nil {
			return err
		}
	}

	if len(images) == 0 {
		r.report.Images = Outcome{Domain: DomainImage, Kind: Success}
		return r.conclude(StateImageWrite, r.report.Images, "No images found in PDF.")
	}

	hashes := make([]string, len(images))
	for i, img := range images {
		hashes[i] = fingerprint.Bytes(img.Data)
	}
	if err := r.emitf(StateImageExtract, "Found %d images to check for duplicates.", len(images)); err != nil {
		return err
	}

	unlock, err := r.acquire(DomainImage)
	if err != nil {
		return err
	}
	defer unlock()

	if err := r.emitf(StateImageDedup, "Checking image store for %s...", r.source); err != nil {
		return err
	}
	match, err := r.o.detector.Images(r.ctx, r.o.image, r.criteria(hashes))
	if err != nil {
		return r.storeErr(DomainImage, FailureDetectionUnavailable, err)
	}
	if match.Exists {
		r.report.Images = Outcome{Domain: DomainImage, Kind: Skipped, Units: len(match.Units), Reason: string(match.Tier)}
		metrics.DomainSkippedTotal.WithLabelValues(string(DomainImage), string(match.Tier)).Inc()
		return r.conclude(StateImageSkip, r.report.Images,
			"%s already exists in image store (duplicate images detected via %s). Skipping image ingestion.", r.source, match.Tier)
	}
	return r.writeImages(images, hashes)
}

type describedImage struct {
	pdf.Image
	hash    string
	caption string
}

func (r *run) writeImages(images []pdf.Image, hashes []string) error {
	var kept []describedImage
	rejected := 0
	for i, img := range images {
		if r.ctx.Err() != nil {
			return errStopped
		}
		caption, informative, err := r.o.describer.Describe(r.ctx, img.Data, img.ContextText)
		if errors.Is(err, describe.ErrUndecodable) {
			r.o.logger.Warn("image could not be decoded", "source", r.source, "image", img.Ref, "error", err)
			if err := r.emitf(StateImageWrite, "Image %s could not be extracted: %v", img.Ref, err); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return r.storeErr(DomainImage, FailureDescription, fmt.Errorf("describe %s: %w", img.Ref, err))
		}
		if !informative {
			rejected++
			continue
		}
		kept = append(kept, describedImage{Image: img, hash: hashes[i], caption: caption})
	}

	r.report.Rejected = rejected
	if rejected > 0 {
		metrics.ImagesRejectedTotal.Add(float64(rejected))
		if err := r.emitf(StateImageWrite, "Skipped %d non-informative images.", rejected); err != nil {
			return err
		}
	}
	if len(kept) == 0 {
		r.report.Images = Outcome{Domain: DomainImage, Kind: Success}
		return r.conclude(StateImageWrite, r.report.Images, "No informative images found in PDF.")
	}

	now := r.o.now()
	if !r.o.noSidecar {
		if err := r.saveSidecar(kept, now); err != nil {
			return err
		}
	}

	units := make([]*storage.Unit, len(kept))
	ids := make([]string, len(kept))
	for i, k := range kept {
		units[i] = &storage.Unit{
			Content:     CaptionPrefix + k.caption,
			ContentType: storage.ContentImage,
			SourceFile:  r.source,
			OwnerTag:    r.owner,
			PageNumber:  k.PageNumber,
			UnitIndex:   i,
			ContentHash: r.fp,
			ImageHash:   k.hash,
			ImageRef:    k.Ref,
			ContextText: k.ContextText,
			Caption:     k.caption,
			IngestedAt:  now,
		}
		ids[i] = identity.ImageID(r.owner, r.source, i)
	}

	if r.ctx.Err() != nil {
		return errStopped
	}
	if err := r.o.image.AddUnits(r.ctx, units, ids); err != nil {
		return r.storeErr(DomainImage, FailureWrite, err)
	}
	metrics.UnitsWrittenTotal.WithLabelValues(string(DomainImage)).Add(float64(len(units)))
	r.o.logger.Info("images ingested", "source", r.source, "images", len(units), "rejected", rejected)

	r.report.Images = Outcome{Domain: DomainImage, Kind: Success, Units: len(units)}
	return r.conclude(StateImageWrite, r.report.Images,
		"Added %d image captions from %s into the image vector store.", len(units), r.source)
}

// saveSidecar writes the audit file. Failing to write it is reported but
// does not stop ingestion.
func (r *run) saveSidecar(kept []describedImage, now time.Time) error {
	side := Sidecar{
		Metadata:           make(map[string]string, len(kept)),
		IngestionTimestamp: now.Format(time.RFC3339),
		SourceFile:         r.source,
		Company:            r.owner,
	}
	for _, k := range kept {
		side.Metadata[k.Ref] = k.caption
	}

	path := SidecarPath(r.path)
	if err := WriteSidecar(path, side); err != nil {
		r.o.logger.Warn("failed to save image metadata", "path", path, "error", err)
		return r.emitf(StateImageWrite, "Could not save image metadata to %s.", path)
	}
	return r.emitf(StateImageWrite, "Saved image metadata to %s", path)
}

func (r *run) done() error {
	textSkipped := r.report.Text.Kind == Skipped
	imagesSkipped := r.report.Images.Kind == Skipped

	var msg string
	switch {
	case textSkipped && imagesSkipped:
		msg = fmt.Sprintf("Completed processing for %s - file already existed, no new ingestion needed", r.source)
	case textSkipped:
		msg = fmt.Sprintf("Completed processing for %s - text already existed, images processed", r.source)
	case imagesSkipped:
		msg = fmt.Sprintf("Completed processing for %s - images already existed, text processed", r.source)
	default:
		var parts []string
		if n := r.report.Text.Units; n > 0 {
			parts = append(parts, fmt.Sprintf("Added %d text chunks", n))
		}
		if n := r.report.Images.Units; n > 0 {
			parts = append(parts, fmt.Sprintf("Added %d image captions", n))
		}
		msg = "Completed ingestion for " + r.source
		if len(parts) > 0 {
			msg += ": " + strings.Join(parts, ", ")
		}
		msg += "."
	}

	report := r.report
	report.Source = r.source
	report.Duration = time.Since(r.started)
	return r.send(Event{State: StateDone, Message: msg, Report: &report})
}

func (r *run) finish(err error) {
	var se *stepError
	switch {
	case err == nil:
		metrics.ObserveRun("success", r.started)
	case errors.Is(err, errMissingReported):
		metrics.ObserveRun("missing", r.started)
	case errors.Is(err, errStopped):
		r.o.logger.Info("ingestion stopped", "path", r.path)
		metrics.ObserveRun("canceled", r.started)
	case errors.As(err, &se):
		r.o.logger.Error("ingestion failed", "path", r.path, "kind", se.kind, "error", se.err)
		metrics.ObserveRun("failed", r.started)
		out := Outcome{Domain: se.domain, Kind: Failed, Failure: se.kind, Err: se.err}
		if r.conclude(StateError, out, "Error while processing PDF %s: %v", r.path, se.err) != nil {
			return
		}
		_ = r.conclude(StateError, out, "Error trace: %s", flattenTrace(se.err))
	default:
		r.o.logger.Error("ingestion failed", "path", r.path, "error", err)
		metrics.ObserveRun("failed", r.started)
		_ = r.conclude(StateError, Outcome{Kind: Failed, Failure: FailureInternal, Err: err},
			"Error while processing PDF %s: %v", r.path, err)
	}
}

// flattenTrace renders err with its stack trace on one line.
func flattenTrace(err error) string {
	lines := strings.Split(fmt.Sprintf("%+v", err), "\n")
	parts := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, l)
		}
	}
	return strings.Join(parts, " | ")
}
