package commands

import (
	"context"
	"errors"
	"time"

	"github.com/autoreduction/autosubmit/internal/batch"
	"github.com/autoreduction/autosubmit/internal/config"
	"github.com/autoreduction/autosubmit/internal/datafile"
	"github.com/autoreduction/autosubmit/internal/datafile/nexus"
	"github.com/autoreduction/autosubmit/internal/icat"
	"github.com/autoreduction/autosubmit/internal/queue"
	"github.com/autoreduction/autosubmit/internal/reductiondb"
	"github.com/autoreduction/autosubmit/internal/rundata"
	"github.com/autoreduction/autosubmit/internal/submission"
	"go.uber.org/zap"
)

// datafileOpener reads NeXus files. Tests replace it with an in-memory opener.
var datafileOpener datafile.Opener = nexus.Opener{}

// pipeline is everything one batch invocation needs, connected once.
type pipeline struct {
	transport    queue.Transport
	store        *reductiondb.Store
	resolver     *rundata.Resolver
	orchestrator *batch.Orchestrator
	logger       *zap.Logger
}

// openPipeline connects to the broker, then the database, and wires the
// resolver and orchestrator. The ICAT session is opened later, on first use.
func openPipeline(ctx context.Context, cfg *config.Config, opts batch.Options, logger *zap.Logger) (*pipeline, error) {
	transport, err := queue.Dial(ctx, cfg.Queue)
	if err != nil {
		return nil, err
	}

	db, err := reductiondb.Open(ctx, cfg.Database)
	if err != nil {
		transport.Close()
		return nil, err
	}
	store := reductiondb.NewStore(db)

	catalogue, err := icat.NewClient(cfg.ICAT, logger)
	if err != nil {
		store.Close()
		transport.Close()
		return nil, err
	}

	reader := datafile.NewReader(datafileOpener, cfg.Datafile.Rewrites(), cfg.Datafile.Field)
	resolver := rundata.NewResolver(store, catalogue, reader, rundata.Options{
		Prefixes:     cfg.ICAT.Prefixes,
		QueryTimeout: cfg.ICAT.Timeout,
	}, logger)

	composer := submission.NewComposer(transport, cfg.Queue.PublishTimeout, logger)

	if opts.FileExtension == "" {
		opts.FileExtension = cfg.Submission.FileExtension
	}

	return &pipeline{
		transport:    transport,
		store:        store,
		resolver:     resolver,
		orchestrator: batch.New(resolver, composer, opts, logger),
		logger:       logger,
	}, nil
}

// Close logs out of ICAT and releases the broker and database connections.
func (p *pipeline) Close() error {
	// The batch context may already be cancelled; logout gets its own.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := p.resolver.Close(ctx); err != nil {
		p.logger.Warn("Failed to log out of ICAT", zap.Error(err))
		errs = append(errs, err)
	}
	if err := p.transport.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.store.Close(); err != nil {
		errs = append(errs, err)
	}
	_ = p.logger.Sync()
	return errors.Join(errs...)
}
