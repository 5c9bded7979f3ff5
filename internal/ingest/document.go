package ingest

import "github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/pdf"

// Document is the read side of one source file.
type Document interface {
	SourceName() string
	OwnerTag() string
	Pages() ([]pdf.Page, error)
	Images() ([]pdf.Image, []error)
	Close() error
}

// Opener opens the document at path.
type Opener func(path string) (Document, error)

// OpenPDF opens path with the PDF reader.
func OpenPDF(path string) (Document, error) {
	doc, err := pdf.Open(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}
