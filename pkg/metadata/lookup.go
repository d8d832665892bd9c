// Package metadata resolves and imports lab metadata.
package metadata

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
)

// Lookup resolves lab metadata by library id and remembers the answers, misses included.
// A Lookup belongs to one step invocation: create it at the start and drop it at the end.
// It is not safe for concurrent use.
type Lookup struct {
	repo  persistence.LabMetadataRepository
	cache map[string]*models.LabMetadata
}

func NewLookup(repo persistence.LabMetadataRepository) *Lookup {
	return &Lookup{repo: repo, cache: map[string]*models.LabMetadata{}}
}

// ByLibraryID returns nil, nil when no metadata exists for the library.
func (l *Lookup) ByLibraryID(ctx context.Context, libraryID string) (*models.LabMetadata, error) {
	libraryID = strings.TrimSpace(libraryID)

	if metadata, ok := l.cache[libraryID]; ok {
		return metadata, nil
	}

	metadata, err := l.repo.GetByLibraryID(ctx, libraryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata for library %s: %w", libraryID, err)
	}

	l.cache[libraryID] = metadata

	return metadata, nil
}
