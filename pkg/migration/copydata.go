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

package migration

import (
	"context"
	"fmt"

	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils"
	"saturn.io/saturn/pkg/utils/remote"
)

type CopyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func copyFailed(format string, args ...interface{}) *CopyResult {
	return &CopyResult{Error: fmt.Sprintf(format, args...)}
}

// errCopyIntoNewDatabase is returned when data would be copied into a database the migration has to create first.
func errCopyIntoNewDatabase(source models.Resource, env *models.Environment) error {
	return Invalid("Data can only be copied into an existing database, %s does not exist in %s yet.",
		source.GetName(), env.Name)
}

// DataCopier streams a logical dump of one database into another of the same family.
type DataCopier struct {
	store   *Store
	exec    remote.Executor
	options *Options
}

func NewDataCopier(store *Store, exec remote.Executor, options *Options) *DataCopier {
	return &DataCopier{store: store, exec: exec, options: options}
}

// Copy never copies into a production environment, whatever the caller asked for.
func (c *DataCopier) Copy(ctx context.Context, source, target models.Resource, targetEnv *models.Environment) *CopyResult {
	if targetEnv.IsProduction() {
		return copyFailed("Copying data into a production environment is not allowed.")
	}
	src, ok := source.(*models.Database)
	if !ok {
		return copyFailed("Unsupported resource type %s for data copy.", source.Kind())
	}
	dst, ok := target.(*models.Database)
	if !ok {
		return copyFailed("Unsupported resource type %s for data copy.", target.Kind())
	}
	srcSpec, _ := src.Engine.Spec()
	dstSpec, _ := dst.Engine.Spec()
	if !srcSpec.Backupable || srcSpec.CopyFamily == "" || srcSpec.CopyFamily != dstSpec.CopyFamily {
		return copyFailed("Unsupported data copy from %s to %s.", src.Engine, dst.Engine)
	}
	srcServer, err := c.store.ServerOfDestination(src.DestinationID)
	if err != nil {
		return copyFailed("Source server: %v", err)
	}
	dstServer, err := c.store.ServerOfDestination(dst.DestinationID)
	if err != nil {
		return copyFailed("Target server: %v", err)
	}
	dumpCmd, restoreCmd := CopyCommands(src, dst)

	log := log.FromContextOrDiscard(ctx).WithValues("source", src.UUID, "target", dst.UUID)
	log.Info("copying database data", "engine", src.Engine)
	ctx, cancel := context.WithTimeout(ctx, c.options.CommandTimeout)
	defer cancel()
	if err := c.exec.Pipe(ctx, srcServer.Target(), dumpCmd, dstServer.Target(), restoreCmd); err != nil {
		log.Error(err, "copy database data")
		return copyFailed("Data copy failed: %v", err)
	}
	return &CopyResult{Success: true, Message: fmt.Sprintf("Data copied from %s to %s.", src.Name, dst.Name)}
}

// CopyCommands returns the dump command run against src and the restore command reading it into dst.
func CopyCommands(src, dst *models.Database) (dump string, restore string) {
	q := utils.ShellQuote
	srcUser, srcPassword, srcDB := src.Credentials()
	dstUser, dstPassword, dstDB := dst.Credentials()
	switch src.Engine {
	case models.KindPostgreSQL:
		dump = fmt.Sprintf("docker exec -e PGPASSWORD=%s %s pg_dump --clean --if-exists --no-owner -U %s %s",
			q(srcPassword), src.UUID, q(srcUser), q(srcDB))
		restore = fmt.Sprintf("docker exec -i -e PGPASSWORD=%s %s psql -q -U %s -d %s",
			q(dstPassword), dst.UUID, q(dstUser), q(dstDB))
	case models.KindMySQL, models.KindMariaDB:
		dump = fmt.Sprintf("docker exec -e MYSQL_PWD=%s %s mysqldump --single-transaction --routines -u root %s",
			q(rootPassword(src)), src.UUID, q(srcDB))
		restore = fmt.Sprintf("docker exec -i -e MYSQL_PWD=%s %s mysql -u root %s",
			q(rootPassword(dst)), dst.UUID, q(dstDB))
	case models.KindMongoDB:
		dump = fmt.Sprintf("docker exec %s mongodump --archive --gzip -u %s -p %s --authenticationDatabase admin",
			src.UUID, q(srcUser), q(srcPassword))
		restore = fmt.Sprintf("docker exec -i %s mongorestore --archive --gzip --drop -u %s -p %s --authenticationDatabase admin",
			dst.UUID, q(dstUser), q(dstPassword))
	}
	return dump, restore
}

func rootPassword(db *models.Database) string {
	if db.Engine == models.KindMariaDB {
		return db.MariadbRootPassword
	}
	return db.MysqlRootPassword
}
