package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/persistence/postgresql"
	"github.com/dukex/portalflow/pkg/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{"fastq_list_rows", "workflows", "batch_runs", "batches", "sequence_runs", "lab_metadata", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("portalflow_test"),
			postgres.WithUsername("portalflow"),
			postgres.WithPassword("portalflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	persistence, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = persistence.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return persistence, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"batches", "batch_runs", "workflows", "sequence_runs", "fastq_list_rows", "lab_metadata", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 2, version)
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	err := p.HealthCheck(ctx)
	assert.NoError(t, err)
}

func TestSequenceRunRepository_CreateIfNew(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.SequenceRunRepository()

	modified := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	sqr := &models.SequenceRun{
		RunID:           "r.ACGxTAC8mGCtAcgTmITyDA",
		InstrumentRunID: "240501_A01052_0200_AH7KXYDSXC",
		Name:            "240501_A01052_0200_AH7KXYDSXC",
		DateModified:    modified,
		Status:          models.SequenceRunStatusPendingAnalysis,
		GDSFolderPath:   "/Runs/240501_A01052_0200_AH7KXYDSXC_r.ACGxTAC8mGCtAcgTmITyDA",
		GDSVolumeName:   "bssh.acddbfda498038ed99fa94fe79523959",
		ACL:             models.StringList{"wid:e4730533-d752-3601-b4b7-8d4d2f6373de"},
	}

	created, err := repo.CreateIfNew(ctx, sqr)
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotZero(t, created.ID)

	// Same (run_id, date_modified, status) is a duplicate
	duplicate, err := repo.CreateIfNew(ctx, sqr)
	require.NoError(t, err)
	assert.Nil(t, duplicate)

	latest, err := repo.GetLatestByRunID(ctx, sqr.RunID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, created.ID, latest.ID)
	assert.Equal(t, sqr.ACL, latest.ACL)
	assert.True(t, modified.Equal(latest.DateModified))
}

func TestLabMetadataRepository_Upsert(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.LabMetadataRepository()

	metadata := testutil.CreateTestLabMetadata("L2400001", func(m *models.LabMetadata) {
		m.Assay = models.AssayTsqNano
	})

	require.NoError(t, repo.Upsert(ctx, metadata))

	metadata.Workflow = models.MetadataWorkflowManual
	require.NoError(t, repo.Upsert(ctx, metadata))

	stored, err := repo.GetByLibraryID(ctx, "L2400001")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.MetadataWorkflowManual, stored.Workflow)
	assert.Equal(t, "SBJ00001", stored.SubjectID)

	missing, err := repo.GetByLibraryID(ctx, "L0000000")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.Upsert(ctx, testutil.CreateTestLabMetadata("L2400000")))
	require.NoError(t, repo.Upsert(ctx, testutil.CreateTestLabMetadata("L2400009", func(m *models.LabMetadata) {
		m.SubjectID = "SBJ00002"
	})))

	subject, err := repo.ListBySubjectID(ctx, "SBJ00001")
	require.NoError(t, err)
	require.Len(t, subject, 2)
	assert.Equal(t, "L2400000", subject[0].LibraryID)
	assert.Equal(t, "L2400001", subject[1].LibraryID)
}

func TestFastqListRowRepository_Upsert(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.FastqListRowRepository()

	read2 := "gds://vol/run/PRJ240001_L2400001_S1_L001_R2_001.fastq.gz"
	row := &models.FastqListRow{
		RGID:  "CATGCGAT.1.240501_A01052_0200_AH7KXYDSXC.PRJ240001_L2400001",
		RGSM:  "PRJ240001",
		RGLB:  "L2400001",
		Lane:  1,
		Read1: "gds://vol/run/PRJ240001_L2400001_S1_L001_R1_001.fastq.gz",
		Read2: &read2,
	}

	first, err := repo.Upsert(ctx, row)
	require.NoError(t, err)

	row.Lane = 2
	second, err := repo.Upsert(ctx, row)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.Lane)
	require.NotNil(t, second.Read2)
	assert.Equal(t, read2, *second.Read2)
	_, err = repo.Upsert(ctx, &models.FastqListRow{
		RGID:  "CATGCGAT.3.240601_A01052_0210_BH7KXYDSXC.PRJ240001_L2400001_topup",
		RGSM:  "PRJ240001",
		RGLB:  "L2400001",
		Lane:  3,
		Read1: "gds://vol/topup/PRJ240001_L2400001_topup_S1_L003_R1_001.fastq.gz",
	})
	require.NoError(t, err)

	library, err := repo.ListByLibraryID(ctx, "L2400001")
	require.NoError(t, err)
	require.Len(t, library, 2, "rows of every sequencing run share the canonical rglb")
	assert.Equal(t, first.ID, library[0].ID)
	assert.Nil(t, library[1].Read2)
}
