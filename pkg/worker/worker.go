package worker

import (
	"context"

	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service"
	"saturn.io/saturn/pkg/worker/task"
)

// Run consumes migration, backup and deployment tasks until ctx is done.
func Run(ctx context.Context, options *Options) error {
	ctx = log.NewContext(ctx, log.LogrLogger)
	deps, err := service.PrepareDependencies(ctx, options.Options)
	if err != nil {
		return err
	}
	log.FromContextOrDiscard(ctx).Info("worker started", "concurrency", options.Worker.Concurrency)
	return task.Run(ctx, deps.Redis, options.Worker.Concurrency,
		migration.NewTasks(deps.Migration, deps.Redis),
		deps.Backup,
		deps.Deployment,
		task.NewTaskArchiverTasker(deps.Workflow, options.Worker.ArchiveAfter),
	)
}
