package pagesource

import (
	"context"
	"fmt"

	"github.com/sahilchouksey/study-artifacts/model"
	"github.com/sahilchouksey/study-artifacts/services/storage"
)

// Resolver fetches a document's bytes by source handle and opens them with
// the adapter registered for its kind
type Resolver struct {
	blobs   storage.BlobStore
	openers map[model.DocumentKind]Opener
}

// NewResolver creates a resolver with the pdf, slides and image adapters
func NewResolver(blobs storage.BlobStore) *Resolver {
	return &Resolver{
		blobs: blobs,
		openers: map[model.DocumentKind]Opener{
			model.DocumentKindPDF:    OpenPDF,
			model.DocumentKindSlides: OpenSlides,
			model.DocumentKindImage:  OpenImage,
		},
	}
}

// Register overrides the adapter for a document kind
func (r *Resolver) Register(kind model.DocumentKind, opener Opener) {
	r.openers[kind] = opener
}

// Open resolves the document's source handle and parses it
func (r *Resolver) Open(ctx context.Context, doc *model.Document) (Handle, error) {
	opener, ok := r.openers[doc.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported document kind %q", doc.Kind)
	}

	data, err := r.blobs.Get(ctx, doc.SourceHandle)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", doc.Filename, err)
	}

	return opener(data)
}
