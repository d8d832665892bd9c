package metadata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

var ErrMissingLibraryIDColumn = errors.New("metadata sheet has no library id column")

// ImportResult summarises one sheet import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// Importer loads a lab metadata sheet. Headers are normalised and must all be known columns.
type Importer struct {
	repo     persistence.LabMetadataRepository
	logger   *slog.Logger
	validate *validator.Validate
}

func NewImporter(repo persistence.LabMetadataRepository, logger *slog.Logger) *Importer {
	return &Importer{
		repo:     repo,
		logger:   logger.With("module", "metadata_importer"),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Import reads a CSV sheet and upserts one record per row. An unknown header fails the whole
// import before anything is written; a row without library id is skipped.
func (i *Importer) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata header: %w", err)
	}

	columns := make([]string, len(header))
	hasLibraryID := false

	for idx, name := range header {
		column := models.NormalizeColumnName(name)
		if !models.IsLabMetadataColumn(column) {
			return nil, fmt.Errorf("%w: %q", models.ErrUnknownMetadataColumn, name)
		}

		columns[idx] = column
		hasLibraryID = hasLibraryID || column == "library_id"
	}

	if !hasLibraryID {
		return nil, ErrMissingLibraryIDColumn
	}

	result := &ImportResult{}
	line := 1

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		line++

		if err != nil {
			return result, fmt.Errorf("failed to read metadata line %d: %w", line, err)
		}

		var metadata models.LabMetadata

		for idx, value := range record {
			err = metadata.SetColumn(columns[idx], value)
			if err != nil {
				return result, err
			}
		}

		err = i.validate.Struct(&metadata)
		if err != nil {
			i.logger.WarnContext(ctx, "skipping metadata row", "line", line, "error", err)

			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("line %d: %v", line, err))

			continue
		}

		err = i.repo.Upsert(ctx, &metadata)
		if err != nil {
			return result, fmt.Errorf("failed to store metadata for library %s: %w", metadata.LibraryID, err)
		}

		result.Imported++
	}

	i.logger.InfoContext(ctx, "imported lab metadata", "imported", result.Imported, "skipped", result.Skipped)

	return result, nil
}
