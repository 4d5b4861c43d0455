package system

import (
	"time"

	"github.com/spf13/pflag"
	"saturn.io/saturn/pkg/utils"
)

type Options struct {
	Listen          string        `json:"listen,omitempty" description:"listen address"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout,omitempty" description:"time allowed to drain requests on shutdown"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Listen:          ":8020",
		ShutdownTimeout: 15 * time.Second,
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.StringVar(&o.Listen, utils.JoinFlagName(prefix, "listen"), o.Listen, "listen address")
	fs.DurationVar(&o.ShutdownTimeout, utils.JoinFlagName(prefix, "shutdownTimeout"), o.ShutdownTimeout, "time allowed to drain requests on shutdown")
}
