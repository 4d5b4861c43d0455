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

package models

import "sort"

type ResourceKind string

const (
	KindApplication ResourceKind = "application"
	KindService     ResourceKind = "service"
	KindPostgreSQL  ResourceKind = "postgresql"
	KindMySQL       ResourceKind = "mysql"
	KindMariaDB     ResourceKind = "mariadb"
	KindMongoDB     ResourceKind = "mongodb"
	KindRedis       ResourceKind = "redis"
	KindKeyDB       ResourceKind = "keydb"
	KindDragonfly   ResourceKind = "dragonfly"
	KindClickHouse  ResourceKind = "clickhouse"
)

// Credential roles used as keys of KindSpec.CredentialFields.
const (
	CredentialPassword     = "password"
	CredentialRootPassword = "root_password"
)

// AllDatabases is the database name meaning every database of the instance.
const AllDatabases = "*"

// KindSpec describes what the platform can do with one kind of resource.
type KindSpec struct {
	Kind       ResourceKind
	IsDatabase bool
	// Backupable engines have a dump tool supported by backups and data copy.
	Backupable       bool
	SupportsRotation bool
	// CopyFamily groups engines whose dumps restore into each other.
	CopyFamily string
	// ConfigFields are copied by a config only update.
	ConfigFields []string
	// EnvironmentBoundFields describe where a resource is reachable and never leave its environment.
	EnvironmentBoundFields []string
	// CredentialFields maps a credential role to the column holding it.
	CredentialFields map[string]string
	// DatabaseField is the column holding the default database name, or AllDatabases.
	DatabaseField string
	DefaultPort   int
	Scheme        string
	New           func() Resource
}

func newDatabaseOf(kind ResourceKind) func() Resource {
	return func() Resource { return &Database{Engine: kind} }
}

var databaseConfigFields = []string{"description", "image", "limits_memory", "limits_cpus"}

var databaseBoundFields = []string{"is_public", "public_port", "ports_mappings"}

var Kinds = map[ResourceKind]KindSpec{
	KindApplication: {
		Kind: KindApplication,
		ConfigFields: []string{
			"description", "git_repository", "git_branch", "build_pack", "dockerfile", "docker_compose_raw",
			"base_directory", "publish_directory", "install_command", "build_command", "start_command",
			"ports_exposes", "health_check_enabled", "health_check_path", "health_check_port",
			"limits_memory", "limits_cpus",
		},
		EnvironmentBoundFields: []string{"fqdn", "custom_labels", "manual_webhook_secret", "ports_mappings"},
		New:                    func() Resource { return &Application{} },
	},
	KindService: {
		Kind:                   KindService,
		ConfigFields:           []string{"description", "docker_compose_raw", "docker_compose", "connect_to_docker_network"},
		EnvironmentBoundFields: []string{"ports_mappings"},
		New:                    func() Resource { return &Service{} },
	},
	KindPostgreSQL: {
		Kind:                   KindPostgreSQL,
		IsDatabase:             true,
		Backupable:             true,
		SupportsRotation:       true,
		CopyFamily:             "postgresql",
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		CredentialFields:       map[string]string{CredentialPassword: "postgres_password"},
		DatabaseField:          "postgres_db",
		DefaultPort:            5432,
		Scheme:                 "postgres",
		New:                    newDatabaseOf(KindPostgreSQL),
	},
	KindMySQL: {
		Kind:                   KindMySQL,
		IsDatabase:             true,
		Backupable:             true,
		SupportsRotation:       true,
		CopyFamily:             "mysql",
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		CredentialFields:       map[string]string{CredentialPassword: "mysql_password", CredentialRootPassword: "mysql_root_password"},
		DatabaseField:          "mysql_database",
		DefaultPort:            3306,
		Scheme:                 "mysql",
		New:                    newDatabaseOf(KindMySQL),
	},
	KindMariaDB: {
		Kind:                   KindMariaDB,
		IsDatabase:             true,
		Backupable:             true,
		SupportsRotation:       true,
		CopyFamily:             "mysql",
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		CredentialFields:       map[string]string{CredentialPassword: "mariadb_password", CredentialRootPassword: "mariadb_root_password"},
		DatabaseField:          "mariadb_database",
		DefaultPort:            3306,
		Scheme:                 "mysql",
		New:                    newDatabaseOf(KindMariaDB),
	},
	KindMongoDB: {
		Kind:                   KindMongoDB,
		IsDatabase:             true,
		Backupable:             true,
		SupportsRotation:       true,
		CopyFamily:             "mongodb",
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		CredentialFields:       map[string]string{CredentialPassword: "mongo_initdb_root_password"},
		DatabaseField:          AllDatabases,
		DefaultPort:            27017,
		Scheme:                 "mongodb",
		New:                    newDatabaseOf(KindMongoDB),
	},
	KindRedis: {
		Kind:                   KindRedis,
		IsDatabase:             true,
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		DefaultPort:            6379,
		Scheme:                 "redis",
		New:                    newDatabaseOf(KindRedis),
	},
	KindKeyDB: {
		Kind:                   KindKeyDB,
		IsDatabase:             true,
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		DefaultPort:            6379,
		Scheme:                 "redis",
		New:                    newDatabaseOf(KindKeyDB),
	},
	KindDragonfly: {
		Kind:                   KindDragonfly,
		IsDatabase:             true,
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		DefaultPort:            6379,
		Scheme:                 "redis",
		New:                    newDatabaseOf(KindDragonfly),
	},
	KindClickHouse: {
		Kind:                   KindClickHouse,
		IsDatabase:             true,
		ConfigFields:           databaseConfigFields,
		EnvironmentBoundFields: databaseBoundFields,
		DefaultPort:            9000,
		Scheme:                 "clickhouse",
		New:                    newDatabaseOf(KindClickHouse),
	},
}

func (k ResourceKind) Valid() bool {
	_, ok := Kinds[k]
	return ok
}

func (k ResourceKind) Spec() (KindSpec, bool) {
	spec, ok := Kinds[k]
	return spec, ok
}

func (k ResourceKind) IsDatabase() bool {
	return Kinds[k].IsDatabase
}

// AllKinds returns the registered kinds sorted by name.
func AllKinds() []ResourceKind {
	kinds := make([]ResourceKind, 0, len(Kinds))
	for k := range Kinds {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// DatabaseKinds returns the database engines sorted by name.
func DatabaseKinds() []ResourceKind {
	ret := []ResourceKind{}
	for _, k := range AllKinds() {
		if Kinds[k].IsDatabase {
			ret = append(ret, k)
		}
	}
	return ret
}
