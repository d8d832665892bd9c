package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/portalflow/pkg/dispatcher"
	"github.com/dukex/portalflow/pkg/ingress"
	"github.com/dukex/portalflow/pkg/launcher"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/orchestration"
	"github.com/dukex/portalflow/pkg/orchestrator"
	"github.com/dukex/portalflow/pkg/persistence"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/wes"
	"github.com/urfave/cli/v3"
)

// Runtime is the event handling stack shared by the orchestrator and the API: persistence,
// transport, the orchestrator with its routes and the ingress handler in front of it.
type Runtime struct {
	Persistence  persistence.Persistence
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Orchestrator *orchestrator.Orchestrator
	Ingress      *ingress.Handler

	queue  *dispatcher.RedisQueue
	logger *slog.Logger
}

// NewRuntime builds the Runtime from the flags of ConfigFlags, DatabaseFlags, WESFlags,
// NotificationFlags, TransportFlags and TracingFlags.
func NewRuntime(ctx context.Context, command *cli.Command, serviceName string, logger *slog.Logger) (*Runtime, error) {
	cfg, err := LoadOrchestration(command.String("config"), command.String("skip-list"))
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(ctx, command.Bool("tracing"), serviceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	r := &Runtime{logger: logger}

	r.Persistence, err = NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, err
	}

	r.Publisher, r.Subscriber, err = NewPubSub(command.String("pubsub"), command.StringSlice("kafka-brokers"), serviceName, logger)
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	var backend dispatcher.Backend

	backend, r.queue, err = NewJobBackend(ctx, command.String("job-backend"), r.Publisher, command.String("redis-url"), logger)
	if err != nil {
		r.Close(ctx)

		return nil, err
	}

	workflows := services.NewWorkflow(r.Persistence)
	batches := services.NewBatch(r.Persistence)
	sequenceRuns := services.NewSequenceRun(r.Persistence)

	wesClient := wes.NewHTTPClient(command.String("wes-url"), command.String("wes-token"), command.Duration("wes-timeout"), logger)
	notifier := NewNotifier(r.Persistence, command.String("slack-webhook-url"), command.String("slack-channel"), logger)

	deps := orchestration.Dependencies{
		Batcher:    orchestration.NewBatcher(batches, sequenceRuns, logger),
		Metadata:   r.Persistence.LabMetadataRepository(),
		Dispatcher: dispatcher.New(backend, logger),
		Logger:     logger,
	}

	r.Orchestrator = orchestrator.New(workflows, sequenceRuns, wesClient, notifier, cfg.Skip, tracer, logger)
	r.Orchestrator.Route(models.WorkflowTypeBCLConvert, orchestrator.BCLConvertSteps(cfg, deps, sequenceRuns)...)
	r.Orchestrator.Route(models.WorkflowTypeGermline, orchestrator.GermlineSteps(cfg, deps, workflows, sequenceRuns)...)

	bclLauncher := launcher.New(cfg, wesClient, workflows, sequenceRuns, batches, notifier, tracer, logger)

	r.Ingress = ingress.NewHandler(sequenceRuns, r.Orchestrator, bclLauncher, notifier, tracer, logger)

	return r, nil
}

func (r *Runtime) Close(ctx context.Context) {
	var errs []error

	if r.queue != nil {
		errs = append(errs, r.queue.Close())
	}

	if r.Subscriber != nil {
		errs = append(errs, r.Subscriber.Close())
	}

	if r.Publisher != nil {
		errs = append(errs, r.Publisher.Close())
	}

	if r.Persistence != nil {
		errs = append(errs, r.Persistence.Close(ctx))
	}

	err := errors.Join(errs...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to close resources", "error", err)
	}
}
