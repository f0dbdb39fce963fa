package core

import (
	"context"

	"github.com/joseph-ayodele/cv-parser/internal/repository"
	"github.com/joseph-ayodele/cv-parser/internal/storage"
)

// DocumentStore is everything the processor needs from the outside world:
// reading a document and writing the candidate's text back.
type DocumentStore interface {
	Download(ctx context.Context, path string) ([]byte, error)
	UpdateCVText(ctx context.Context, candidateID int64, text string) error
}

type documentStore struct {
	storage.ObjectStore
	repository.CandidateRepository
}

// NewDocumentStore pairs an object store with a record store.
func NewDocumentStore(objects storage.ObjectStore, records repository.CandidateRepository) DocumentStore {
	return documentStore{ObjectStore: objects, CandidateRepository: records}
}
