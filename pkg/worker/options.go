package worker

import (
	"time"

	"github.com/spf13/pflag"
	"saturn.io/saturn/pkg/service/options"
	"saturn.io/saturn/pkg/utils"
)

type Options struct {
	*options.Options `yaml:",inline"`
	Worker           *WorkerOptions `json:"worker,omitempty" yaml:"worker" head_comment:"task queue consumer"`
}

type WorkerOptions struct {
	Concurrency  int           `json:"concurrency,omitempty" yaml:"concurrency"`
	ArchiveAfter time.Duration `json:"archiveAfter,omitempty" yaml:"archiveafter"`
}

func DefaultOptions() *Options {
	return &Options{
		Options: options.DefaultOptions(),
		Worker: &WorkerOptions{
			Concurrency:  5,
			ArchiveAfter: 7 * 24 * time.Hour,
		},
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	o.Options.RegistFlags(prefix, fs)
	fs.IntVar(&o.Worker.Concurrency, utils.JoinFlagName(prefix, "worker-concurrency"), o.Worker.Concurrency, "tasks processed in parallel")
	fs.DurationVar(&o.Worker.ArchiveAfter, utils.JoinFlagName(prefix, "worker-archiveafter"), o.Worker.ArchiveAfter, "finished tasks older than this are removed")
}
