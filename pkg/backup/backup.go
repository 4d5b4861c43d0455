// Copyright 2024 The saturn.io Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/migration"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils"
	"saturn.io/saturn/pkg/utils/objectstore"
	"saturn.io/saturn/pkg/utils/remote"
	"saturn.io/saturn/pkg/utils/workflow"
)

const (
	TaskGroup          = "backup"
	TaskDatabaseBackup = "database-backup"
	// FrequencyOnce marks a schedule created for a single backup run.
	FrequencyOnce = "once"
)

type Options struct {
	Dir     string        `json:"dir" description:"directory on the server dumps are written to"`
	Timeout time.Duration `json:"timeout" description:"timeout of one backup"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Dir:     "/data/saturn/backups",
		Timeout: time.Hour,
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.StringVar(&o.Dir, utils.JoinFlagName(prefix, "dir"), o.Dir, "directory on the server dumps are written to")
	fs.DurationVar(&o.Timeout, utils.JoinFlagName(prefix, "timeout"), o.Timeout, "timeout of one backup")
}

// Service records backup executions and runs them on the database server.
type Service struct {
	db       *gorm.DB
	exec     remote.Executor
	options  *Options
	uploader objectstore.Uploader
	client   *workflow.Client
}

var _ migration.BackupTrigger = &Service{}

// NewService creates a backup service, a nil uploader keeps dumps on the server only
// and a nil client runs backups before Trigger returns.
func NewService(db *gorm.DB, exec remote.Executor, options *Options, uploader objectstore.Uploader, client *workflow.Client) *Service {
	return &Service{db: db, exec: exec, options: options, uploader: uploader, client: client}
}

// Trigger records a one shot backup of db and starts it.
func (s *Service) Trigger(ctx context.Context, db *models.Database, teamID uint, databaseName string) (*models.BackupExecution, error) {
	schedule := &models.ScheduledDatabaseBackup{
		UUID:              uuid.NewString(),
		TeamID:            teamID,
		DatabaseType:      db.Engine,
		DatabaseID:        db.ID,
		Frequency:         FrequencyOnce,
		DatabasesToBackup: databaseName,
		SaveS3:            s.uploader != nil,
	}
	execution := &models.BackupExecution{
		UUID:         uuid.NewString(),
		DatabaseName: databaseName,
		Status:       models.BackupStatusRunning,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(schedule).Error; err != nil {
			return err
		}
		execution.ScheduledDatabaseBackupID = schedule.ID
		return tx.Create(execution).Error
	})
	if err != nil {
		return nil, err
	}
	if s.client == nil {
		if err := s.Execute(ctx, execution.UUID); err != nil {
			log.FromContextOrDiscard(ctx).Error(err, "backup failed", "execution", execution.UUID)
		}
		return execution, s.db.WithContext(ctx).First(execution, execution.ID).Error
	}
	err = s.client.SubmitTask(ctx, workflow.Task{
		Name:  TaskDatabaseBackup,
		Group: TaskGroup,
		Steps: []workflow.Step{
			{
				Name:     "backup",
				Function: TaskDatabaseBackup,
				Args:     workflow.ArgsOf(execution.UUID),
				Timeout:  s.options.Timeout,
			},
		},
		Addtionals: map[string]string{"database": db.UUID, "execution": execution.UUID},
	})
	return execution, err
}

func (s *Service) ProvideFuntions() map[string]interface{} {
	return map[string]interface{}{
		TaskDatabaseBackup: s.Execute,
	}
}

// Execute runs a recorded backup execution and stores its outcome on the record.
func (s *Service) Execute(ctx context.Context, executionUUID string) error {
	db := s.db.WithContext(ctx)
	execution := &models.BackupExecution{}
	if err := db.Where("uuid = ?", executionUUID).First(execution).Error; err != nil {
		return err
	}
	schedule := &models.ScheduledDatabaseBackup{}
	if err := db.First(schedule, execution.ScheduledDatabaseBackupID).Error; err != nil {
		return err
	}
	database := &models.Database{}
	if err := db.First(database, schedule.DatabaseID).Error; err != nil {
		return err
	}
	log := log.FromContextOrDiscard(ctx).WithValues("execution", execution.UUID, "database", database.UUID)

	runErr := s.run(ctx, database, execution)
	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.BackupStatusSuccess,
		"message":     "Backup completed.",
		"filename":    execution.Filename,
		"size":        execution.Size,
		"s3_key":      execution.S3Key,
		"finished_at": &now,
	}
	if runErr != nil {
		log.Error(runErr, "backup failed")
		updates["status"] = models.BackupStatusFailed
		updates["message"] = runErr.Error()
	} else {
		log.Info("backup completed", "file", execution.Filename, "size", execution.Size)
	}
	if err := db.Model(execution).Updates(updates).Error; err != nil {
		return err
	}
	return runErr
}

func (s *Service) run(ctx context.Context, database *models.Database, execution *models.BackupExecution) error {
	server, err := migration.NewStore(s.db.WithContext(ctx)).ServerOfDestination(database.DestinationID)
	if err != nil {
		return err
	}
	dump, ext, err := DumpCommand(database, execution.DatabaseName)
	if err != nil {
		return err
	}
	dir := path.Join(s.options.Dir, database.UUID)
	file := path.Join(dir, fmt.Sprintf("%s-%s.%s", database.Name, time.Now().Format("20060102150405"), ext))
	cmd := fmt.Sprintf("mkdir -p %s && %s > %s", utils.ShellQuote(dir), dump, utils.ShellQuote(file))
	if _, err := s.exec.Run(ctx, server.Target(), cmd); err != nil {
		return fmt.Errorf("dump %s: %w", database.Name, err)
	}
	execution.Filename = file

	out, err := s.exec.Run(ctx, server.Target(), "stat -c %s "+utils.ShellQuote(file))
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}
	if execution.Size, err = strconv.ParseInt(strings.TrimSpace(out), 10, 64); err != nil {
		return fmt.Errorf("parse size of %s: %w", file, err)
	}
	if s.uploader == nil {
		return nil
	}
	key, err := s.upload(ctx, server.Target(), file, path.Join(database.UUID, path.Base(file)))
	if err != nil {
		return fmt.Errorf("upload %s: %w", file, err)
	}
	execution.S3Key = key
	return nil
}

// upload copies the dump from the server into a local temp file, the object store needs the length up front.
func (s *Service) upload(ctx context.Context, target remote.Target, file, key string) (string, error) {
	tmp, err := os.CreateTemp("", "saturn-backup-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := s.exec.Stream(ctx, target, "cat "+utils.ShellQuote(file), tmp); err != nil {
		return "", err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return s.uploader.Upload(ctx, key, tmp, size)
}

// DumpCommand returns the command writing a compressed dump of db to stdout and the file extension of the dump.
func DumpCommand(db *models.Database, databaseName string) (string, string, error) {
	q := utils.ShellQuote
	user, password, _ := db.Credentials()
	all := databaseName == "" || databaseName == models.AllDatabases
	switch db.Engine {
	case models.KindPostgreSQL:
		if all {
			return fmt.Sprintf("docker exec -e PGPASSWORD=%s %s pg_dumpall -U %s | gzip",
				q(password), db.UUID, q(user)), "sql.gz", nil
		}
		return fmt.Sprintf("docker exec -e PGPASSWORD=%s %s pg_dump --clean --if-exists --no-owner -U %s %s | gzip",
			q(password), db.UUID, q(user), q(databaseName)), "sql.gz", nil
	case models.KindMySQL, models.KindMariaDB:
		root := db.MysqlRootPassword
		if db.Engine == models.KindMariaDB {
			root = db.MariadbRootPassword
		}
		target := "--all-databases"
		if !all {
			target = "--databases " + q(databaseName)
		}
		return fmt.Sprintf("docker exec -e MYSQL_PWD=%s %s mysqldump --single-transaction --routines -u root %s | gzip",
			q(root), db.UUID, target), "sql.gz", nil
	case models.KindMongoDB:
		cmd := fmt.Sprintf("docker exec %s mongodump --archive --gzip -u %s -p %s --authenticationDatabase admin",
			db.UUID, q(user), q(password))
		if !all {
			cmd += " --db " + q(databaseName)
		}
		return cmd, "archive.gz", nil
	}
	return "", "", fmt.Errorf("backups are not supported for %s", db.Engine)
}
