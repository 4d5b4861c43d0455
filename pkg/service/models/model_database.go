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

import (
	"net"
	"net/url"
	"strconv"
	"time"

	"gorm.io/gorm"
)

// Database one standalone database instance, Engine selects which credential columns are used.
type Database struct {
	ID                      uint           `gorm:"primarykey" json:"id"`
	UUID                    string         `gorm:"type:varchar(36);uniqueIndex" json:"uuid"`
	Name                    string         `gorm:"type:varchar(191)" json:"name"`
	Description             string         `gorm:"type:text" json:"description"`
	Engine                  ResourceKind   `gorm:"type:varchar(30);index" json:"engine"`
	Image                   string         `gorm:"type:varchar(191)" json:"image"`
	IsPublic                bool           `json:"is_public"`
	PublicPort              int            `json:"public_port"`
	PortsMappings           string         `gorm:"type:varchar(255)" json:"ports_mappings"`
	LimitsMemory            string         `gorm:"type:varchar(20);default:0" json:"limits_memory"`
	LimitsCpus              string         `gorm:"type:varchar(20);default:0" json:"limits_cpus"`
	PostgresUser            string         `gorm:"type:varchar(191)" json:"postgres_user"`
	PostgresPassword        string         `gorm:"type:varchar(191)" json:"postgres_password"`
	PostgresDB              string         `gorm:"type:varchar(191)" json:"postgres_db"`
	MysqlRootPassword       string         `gorm:"type:varchar(191)" json:"mysql_root_password"`
	MysqlUser               string         `gorm:"type:varchar(191)" json:"mysql_user"`
	MysqlPassword           string         `gorm:"type:varchar(191)" json:"mysql_password"`
	MysqlDatabase           string         `gorm:"type:varchar(191)" json:"mysql_database"`
	MariadbRootPassword     string         `gorm:"type:varchar(191)" json:"mariadb_root_password"`
	MariadbUser             string         `gorm:"type:varchar(191)" json:"mariadb_user"`
	MariadbPassword         string         `gorm:"type:varchar(191)" json:"mariadb_password"`
	MariadbDatabase         string         `gorm:"type:varchar(191)" json:"mariadb_database"`
	MongoInitdbRootUsername string         `gorm:"type:varchar(191)" json:"mongo_initdb_root_username"`
	MongoInitdbRootPassword string         `gorm:"type:varchar(191)" json:"mongo_initdb_root_password"`
	MongoInitdbDatabase     string         `gorm:"type:varchar(191)" json:"mongo_initdb_database"`
	RedisPassword           string         `gorm:"type:varchar(191)" json:"redis_password"`
	KeydbPassword           string         `gorm:"type:varchar(191)" json:"keydb_password"`
	DragonflyPassword       string         `gorm:"type:varchar(191)" json:"dragonfly_password"`
	ClickhouseAdminUser     string         `gorm:"type:varchar(191)" json:"clickhouse_admin_user"`
	ClickhouseAdminPassword string         `gorm:"type:varchar(191)" json:"clickhouse_admin_password"`
	Status                  string         `gorm:"type:varchar(64);default:exited" json:"status"`
	EnvironmentID           uint           `gorm:"index" json:"environment_id"`
	DestinationID           uint           `gorm:"index" json:"destination_id"`
	CreatedAt               time.Time      `json:"created_at"`
	UpdatedAt               time.Time      `json:"updated_at"`
	DeletedAt               gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (d *Database) Kind() ResourceKind     { return d.Engine }
func (d *Database) GetID() uint            { return d.ID }
func (d *Database) GetUUID() string        { return d.UUID }
func (d *Database) GetName() string        { return d.Name }
func (d *Database) GetEnvironmentID() uint { return d.EnvironmentID }
func (d *Database) GetDestinationID() uint { return d.DestinationID }
func (d *Database) GetStatus() string      { return d.Status }

// Credentials returns user, password and database name used to connect as the application user.
func (d *Database) Credentials() (user, password, dbname string) {
	switch d.Engine {
	case KindPostgreSQL:
		return d.PostgresUser, d.PostgresPassword, d.PostgresDB
	case KindMySQL:
		return d.MysqlUser, d.MysqlPassword, d.MysqlDatabase
	case KindMariaDB:
		return d.MariadbUser, d.MariadbPassword, d.MariadbDatabase
	case KindMongoDB:
		return d.MongoInitdbRootUsername, d.MongoInitdbRootPassword, d.MongoInitdbDatabase
	case KindRedis:
		return "default", d.RedisPassword, "0"
	case KindKeyDB:
		return "", d.KeydbPassword, "0"
	case KindDragonfly:
		return "", d.DragonflyPassword, "0"
	case KindClickHouse:
		return d.ClickhouseAdminUser, d.ClickhouseAdminPassword, ""
	}
	return "", "", ""
}

// InternalURL is reachable from containers on the same docker network, the host is the database uuid.
func (d *Database) InternalURL() string {
	spec, ok := Kinds[d.Engine]
	if !ok {
		return ""
	}
	return d.connectionURL(spec, d.UUID, spec.DefaultPort)
}

// ExternalURL is reachable through the server public ip, empty when the database is not public.
func (d *Database) ExternalURL(serverIP string) string {
	spec, ok := Kinds[d.Engine]
	if !ok || !d.IsPublic || d.PublicPort == 0 || serverIP == "" {
		return ""
	}
	return d.connectionURL(spec, serverIP, d.PublicPort)
}

func (d *Database) connectionURL(spec KindSpec, host string, port int) string {
	user, password, dbname := d.Credentials()
	u := url.URL{
		Scheme: spec.Scheme,
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
	}
	switch {
	case user != "" && password != "":
		u.User = url.UserPassword(user, password)
	case password != "":
		u.User = url.UserPassword("", password)
	case user != "":
		u.User = url.User(user)
	}
	switch d.Engine {
	case KindMongoDB:
		u.Path = "/"
		u.RawQuery = "directConnection=true"
	default:
		if dbname != "" {
			u.Path = "/" + dbname
		}
	}
	return u.String()
}
