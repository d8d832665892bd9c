package launcher_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/dukex/portalflow/pkg/config"
	"github.com/dukex/portalflow/pkg/launcher"
	"github.com/dukex/portalflow/pkg/mocks"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/otelhelper"
	"github.com/dukex/portalflow/pkg/persistence/file"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/wes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const orchestrationYAML = `
workflows:
  bcl_convert:
    id: wfl.bcl
    version: 3.7.5
    input:
      strict-mode: true
  germline:
    id: wfl.germline
    version: 4.2.4
    input:
      output_dirname: germline
  dragen_tso_ctdna:
    id: wfl.tso
    version: 1.1.0
  tumor_normal:
    id: wfl.tn
    version: 3.9.3
`

type fixture struct {
	workflows    *services.Workflow
	sequenceRuns *services.SequenceRun
	batches      *services.Batch
	wes          *mocks.MockWESClient
	notifier     *mocks.MockNotifier
	launcher     *launcher.Launcher
	sqr          *models.SequenceRun
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p, err := file.NewPersistence(t.TempDir())
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(orchestrationYAML))
	require.NoError(t, err)

	f := &fixture{
		workflows:    services.NewWorkflow(p),
		sequenceRuns: services.NewSequenceRun(p),
		batches:      services.NewBatch(p),
		wes:          &mocks.MockWESClient{},
		notifier:     &mocks.MockNotifier{},
	}

	f.launcher = launcher.New(cfg, f.wes, f.workflows, f.sequenceRuns, f.batches, f.notifier, otelhelper.Noop(),
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	f.sqr, err = f.sequenceRuns.CreateIfNew(t.Context(), &models.SequenceRun{
		RunID:           "r.ACGT",
		InstrumentRunID: "240501_A01052_0200_AH7KXYDSXC",
		Name:            "240501_A01052_0200_AH7KXYDSXC",
		DateModified:    time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Status:          models.SequenceRunStatusPendingAnalysis,
		GDSVolumeName:   "bssh.vol",
		GDSFolderPath:   "/Runs/240501_A01052_0200_AH7KXYDSXC_r.ACGT",
	})
	require.NoError(t, err)

	return f
}

func launched(id string) *wes.Run {
	return &wes.Run{ID: id, Status: "Requested", WorkflowVersion: &wes.WorkflowVersion{ID: "wfv." + id}}
}

func TestLauncher_LaunchBCLConvert(t *testing.T) {
	f := newFixture(t)

	var req wes.LaunchRequest

	f.wes.On("Launch", mock.Anything, "wfl.bcl", "3.7.5", mock.Anything).Run(func(args mock.Arguments) {
		req = args.Get(3).(wes.LaunchRequest)
	}).Return(launched("wfr.bcl"), nil).Once()

	result, err := f.launcher.LaunchBCLConvert(t.Context(), f.sqr)
	require.NoError(t, err)

	assert.Equal(t, models.LaunchStatusLaunched, result.Status)
	assert.True(t, strings.HasPrefix(req.Name, "portalflow__automated__bcl_convert__240501_A01052_0200_AH7KXYDSXC__r.ACGT__"))
	assert.Equal(t, true, req.Input["strict-mode"])
	assert.Equal(t, map[string]any{"class": "Directory", "location": "gds://bssh.vol/Runs/240501_A01052_0200_AH7KXYDSXC_r.ACGT"}, req.Input["bcl_input_directory"])
	assert.Equal(t, map[string]any{"class": "File", "location": "gds://bssh.vol/Runs/240501_A01052_0200_AH7KXYDSXC_r.ACGT/SampleSheet.csv"}, req.Input["samplesheet"])

	stored, err := f.workflows.FindOrNone(t.Context(), "wfr.bcl", "wfv.wfr.bcl")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.WorkflowTypeBCLConvert, stored.Type)
	assert.Equal(t, f.sqr.ID, *stored.SequenceRunID)
	assert.True(t, stored.IsRunning())

	again, err := f.launcher.LaunchBCLConvert(t.Context(), f.sqr)
	require.NoError(t, err)
	assert.Equal(t, models.LaunchStatusSkipped, again.Status)
	assert.Equal(t, "Matching workflow runs found", again.Reason)
	assert.Len(t, again.MatchedRuns, 1)

	f.wes.AssertExpectations(t)
}

func (f *fixture) germlineJob(t *testing.T) *models.Job {
	t.Helper()

	batch, err := f.batches.GetOrCreateBatch(t.Context(), f.sqr.Name, "wfr.bcl")
	require.NoError(t, err)

	run, err := f.batches.SkipOrCreateBatchRun(t.Context(), batch, "GERMLINE")
	require.NoError(t, err)

	return &models.Job{
		SampleName: "PRJ240001",
		LibraryID:  "L2400001",
		FastqListRows: []models.JobFastqListRow{{
			RGID: "AAA.1." + f.sqr.Name, RGSM: "PRJ240001", RGLB: "L2400001", Lane: 1,
			Read1: models.NewFileRef("gds://vol/R1.fastq.gz"),
		}},
		SeqRunID:   &f.sqr.RunID,
		SeqName:    &f.sqr.Name,
		BatchRunID: run.ID,
	}
}

func TestLauncher_HandleJob(t *testing.T) {
	f := newFixture(t)
	job := f.germlineJob(t)

	var req wes.LaunchRequest

	f.wes.On("Launch", mock.Anything, "wfl.germline", "4.2.4", mock.Anything).Run(func(args mock.Arguments) {
		req = args.Get(3).(wes.LaunchRequest)
	}).Return(launched("wfr.g1"), nil).Once()
	f.notifier.On("BatchRunStatus", mock.Anything, job.BatchRunID).Return(true, nil).Once()

	result, err := f.launcher.HandleJob(t.Context(), models.WorkflowTypeGermline, job)
	require.NoError(t, err)
	assert.Equal(t, models.LaunchStatusLaunched, result.Status)

	assert.Equal(t, "germline", req.Input["output_dirname"])
	assert.Equal(t, "PRJ240001", req.Input["sample_name"])
	assert.Contains(t, req.Input, "fastq_list_rows")
	assert.NotContains(t, req.Input, "batch_run_id")
	assert.NotContains(t, req.Input, "library_id")
	assert.Contains(t, req.Name, "__germline__240501_A01052_0200_AH7KXYDSXC__PRJ240001__")

	workflows, err := f.workflows.ListByBatchRun(t.Context(), job.BatchRunID)
	require.NoError(t, err)
	require.Len(t, workflows, 1)
	assert.Equal(t, "PRJ240001", *workflows[0].SampleName)
	assert.Equal(t, f.sqr.ID, *workflows[0].SequenceRunID)

	again, err := f.launcher.HandleJob(t.Context(), models.WorkflowTypeGermline, job)
	require.NoError(t, err)
	assert.Equal(t, models.LaunchStatusSkipped, again.Status)

	f.wes.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestLauncher_HandleJob_TumorNormal(t *testing.T) {
	f := newFixture(t)

	job := &models.Job{
		SampleName: "PRJ250001",
		SubjectID:  "SBJ00100",
		FastqListRows: []models.JobFastqListRow{{
			RGID: "HHH.1", RGSM: "PRJ250002", RGLB: "L2500002", Lane: 1, Read1: models.NewFileRef("gds://vol/N_R1.fastq.gz"),
		}},
		TumorFastqListRows: []models.JobFastqListRow{{
			RGID: "GGG.1", RGSM: "PRJ250001", RGLB: "L2500001", Lane: 1, Read1: models.NewFileRef("gds://vol/T_R1.fastq.gz"),
		}},
		OutputFilePrefix: "PRJ250001",
		OutputDirectory:  "SBJ00100",
	}

	var req wes.LaunchRequest

	f.wes.On("Launch", mock.Anything, "wfl.tn", "3.9.3", mock.Anything).Run(func(args mock.Arguments) {
		req = args.Get(3).(wes.LaunchRequest)
	}).Return(launched("wfr.tn1"), nil).Once()

	result, err := f.launcher.HandleJob(t.Context(), models.WorkflowTypeTumorNormal, job)
	require.NoError(t, err)
	assert.Equal(t, models.LaunchStatusLaunched, result.Status)

	assert.Contains(t, req.Input, "tumor_fastq_list_rows")
	assert.Contains(t, req.Input, "fastq_list_rows")
	assert.Equal(t, "PRJ250001", req.Input["output_file_prefix"])
	assert.Equal(t, "SBJ00100", req.Input["output_directory"])
	assert.NotContains(t, req.Input, "subject_id")
	assert.Contains(t, req.Name, "__tumor_normal__SBJ00100__PRJ250001__")

	again, err := f.launcher.HandleJob(t.Context(), models.WorkflowTypeTumorNormal, job)
	require.NoError(t, err)
	assert.Equal(t, models.LaunchStatusSkipped, again.Status)

	f.wes.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "BatchRunStatus", mock.Anything, mock.Anything)
}

func TestLauncher_HandleJob_TSOSamples(t *testing.T) {
	f := newFixture(t)
	job := f.germlineJob(t)
	job.TSO500Sample = &models.TSO500Sample{SampleID: "PRJ240001_L2400001", SampleName: "PRJ240001", SampleType: "DNA", PairID: "PRJ240001"}

	var req wes.LaunchRequest

	f.wes.On("Launch", mock.Anything, "wfl.tso", "1.1.0", mock.Anything).Run(func(args mock.Arguments) {
		req = args.Get(3).(wes.LaunchRequest)
	}).Return(launched("wfr.t1"), nil).Once()
	f.notifier.On("BatchRunStatus", mock.Anything, job.BatchRunID).Return(false, nil)

	_, err := f.launcher.HandleJob(t.Context(), models.WorkflowTypeDragenTSOCtDNA, job)
	require.NoError(t, err)

	assert.NotContains(t, req.Input, "tso500_sample")
	assert.Len(t, req.Input["tso500_samples"], 1)
}

func TestLauncher_HandleJob_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.launcher.HandleJob(t.Context(), models.WorkflowTypeGermline, &models.Job{})
	require.ErrorIs(t, err, launcher.ErrInvalidJob)

	_, err = f.launcher.HandleJob(t.Context(), models.WorkflowTypeDragenWTS, &models.Job{SampleName: "PRJ240003"})
	require.ErrorIs(t, err, config.ErrWorkflowNotConfigured)

	f.wes.On("Launch", mock.Anything, "wfl.germline", "4.2.4", mock.Anything).Return(nil, errors.New("503")).Once()

	_, err = f.launcher.HandleJob(t.Context(), models.WorkflowTypeGermline, &models.Job{SampleName: "PRJ240001"})
	require.Error(t, err)
}

func TestLauncher_Subscribe(t *testing.T) {
	f := newFixture(t)
	job := f.germlineJob(t)

	f.wes.On("Launch", mock.Anything, "wfl.germline", "4.2.4", mock.Anything).Return(launched("wfr.g1"), nil).Once()

	done := make(chan struct{})

	f.notifier.On("BatchRunStatus", mock.Anything, job.BatchRunID).Run(func(mock.Arguments) {
		close(done)
	}).Return(true, nil).Once()

	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 10, Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() {
		_ = pubSub.Close()
	})

	payload, err := json.Marshal(job)
	require.NoError(t, err)

	require.NoError(t, pubSub.Publish("germline",
		message.NewMessage(watermill.NewUUID(), []byte("not json")),
		message.NewMessage(watermill.NewUUID(), payload),
	))

	go func() {
		_ = f.launcher.Subscribe(t.Context(), pubSub, models.WorkflowTypeGermline)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job was not launched")
	}
}
