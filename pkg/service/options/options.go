package options

import (
	"github.com/spf13/pflag"
	"saturn.io/saturn/pkg/backup"
	"saturn.io/saturn/pkg/deployment"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/utils"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/utils/jwt"
	"saturn.io/saturn/pkg/utils/objectstore"
	"saturn.io/saturn/pkg/utils/redis"
	"saturn.io/saturn/pkg/utils/remote"
	"saturn.io/saturn/pkg/utils/system"
)

// Options configures both the api service and the worker.
type Options struct {
	System      *system.Options      `json:"system,omitempty" yaml:"system" head_comment:"http server"`
	DebugMode   bool                 `json:"debugMode,omitempty" yaml:"debugmode"`
	LogLevel    string               `json:"logLevel,omitempty" yaml:"loglevel"`
	Database    *database.Options    `json:"database,omitempty" yaml:"database" head_comment:"database, mysql postgres or sqlite"`
	Redis       *redis.Options       `json:"redis,omitempty" yaml:"redis" head_comment:"redis, task queue locks and notifications"`
	JWT         *jwt.Options         `json:"jwt,omitempty" yaml:"jwt"`
	Remote      *remote.Options      `json:"remote,omitempty" yaml:"remote" head_comment:"ssh access to servers"`
	ObjectStore *objectstore.Options `json:"objectstore,omitempty" yaml:"objectstore" head_comment:"s3 compatible storage of backups, disabled when url is empty"`
	Migration   *migration.Options   `json:"migration,omitempty" yaml:"migration"`
	Backup      *backup.Options      `json:"backup,omitempty" yaml:"backup"`
	Deployment  *deployment.Options  `json:"deployment,omitempty" yaml:"deployment"`
}

func DefaultOptions() *Options {
	return &Options{
		System:      system.NewDefaultOptions(),
		DebugMode:   false,
		LogLevel:    "info",
		Database:    database.NewDefaultOptions(),
		Redis:       redis.NewDefaultOptions(),
		JWT:         jwt.DefaultOptions(),
		Remote:      remote.NewDefaultOptions(),
		ObjectStore: objectstore.NewDefaultOptions(),
		Migration:   migration.NewDefaultOptions(),
		Backup:      backup.NewDefaultOptions(),
		Deployment:  deployment.NewDefaultOptions(),
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.BoolVar(&o.DebugMode, utils.JoinFlagName(prefix, "debugmode"), o.DebugMode, "enable debug mode")
	fs.StringVar(&o.LogLevel, utils.JoinFlagName(prefix, "loglevel"), o.LogLevel, "log level")
	o.System.RegistFlags(utils.JoinFlagName(prefix, "system"), fs)
	o.Database.RegistFlags(utils.JoinFlagName(prefix, "database"), fs)
	o.Redis.RegistFlags(utils.JoinFlagName(prefix, "redis"), fs)
	o.JWT.RegistFlags(utils.JoinFlagName(prefix, "jwt"), fs)
	o.Remote.RegistFlags(utils.JoinFlagName(prefix, "remote"), fs)
	o.ObjectStore.RegistFlags(utils.JoinFlagName(prefix, "objectstore"), fs)
	o.Migration.RegistFlags(utils.JoinFlagName(prefix, "migration"), fs)
	o.Backup.RegistFlags(utils.JoinFlagName(prefix, "backup"), fs)
	o.Deployment.RegistFlags(utils.JoinFlagName(prefix, "deployment"), fs)
}
