package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/portalflow/pkg/cmd"
	"github.com/dukex/portalflow/pkg/config"
	"github.com/dukex/portalflow/pkg/launcher"
	"github.com/dukex/portalflow/pkg/log"
	"github.com/dukex/portalflow/pkg/models"
	"github.com/dukex/portalflow/pkg/services"
	"github.com/dukex/portalflow/pkg/wes"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context, command *cli.Command) error {
	consumerID := command.String("consumer-id")
	if consumerID == "" {
		consumerID = "launcher-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("portalflow-launcher").With("consumer_id", consumerID)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cmd.LoadOrchestration(command.String("config"), command.String("skip-list"))
	if err != nil {
		return err
	}

	types, err := consumedTypes(cfg, command.StringSlice("types"))
	if err != nil {
		return err
	}

	tracer, err := cmd.NewTracer(ctx, command.Bool("tracing"), "portalflow-launcher")
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := p.Close(context.WithoutCancel(ctx))
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	wesClient := wes.NewHTTPClient(command.String("wes-url"), command.String("wes-token"), command.Duration("wes-timeout"), logger)
	notifier := cmd.NewNotifier(p, command.String("slack-webhook-url"), command.String("slack-channel"), logger)

	l := launcher.New(cfg, wesClient, services.NewWorkflow(p), services.NewSequenceRun(p), services.NewBatch(p), notifier, tracer, logger)

	group, ctx := errgroup.WithContext(ctx)

	switch command.String("job-backend") {
	case cmd.JobBackendRedis:
		queue, err := cmd.NewRedisQueue(ctx, command.String("redis-url"), logger)
		if err != nil {
			return err
		}

		defer func() {
			_ = queue.Close()
		}()

		for _, wfType := range types {
			group.Go(func() error {
				return l.Consume(ctx, queue, wfType, command.String("consumer-group"), consumerID)
			})
		}
	default:
		publisher, subscriber, err := cmd.NewPubSub(command.String("pubsub"), command.StringSlice("kafka-brokers"), "portalflow-launcher", logger)
		if err != nil {
			return err
		}

		defer func() {
			_ = subscriber.Close()
			_ = publisher.Close()
		}()

		for _, wfType := range types {
			group.Go(func() error {
				return l.Subscribe(ctx, subscriber, wfType)
			})
		}
	}

	logger.InfoContext(ctx, "Launcher started", "types", types, "job_backend", command.String("job-backend"))

	return group.Wait()
}

// consumedTypes resolves names to workflow types, keeping those with a configured workflow.
func consumedTypes(cfg *config.Orchestration, names []string) ([]models.WorkflowType, error) {
	types := make([]models.WorkflowType, 0, len(names))

	for _, name := range names {
		wfType, err := models.ParseWorkflowType(name)
		if err != nil {
			return nil, err
		}

		_, err = cfg.Workflow(wfType)
		if err != nil {
			continue
		}

		types = append(types, wfType)
	}

	if len(types) == 0 {
		return nil, fmt.Errorf("no configured workflow among %v", names)
	}

	return types, nil
}
