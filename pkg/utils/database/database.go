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

package database

import (
	"fmt"
	"net"
	"time"

	"github.com/glebarez/sqlite"
	driver "github.com/go-sql-driver/mysql"
	"github.com/spf13/pflag"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/utils"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Options struct {
	Driver   string `json:"driver" description:"database driver, one of mysql, postgres, sqlite"`
	Addr     string `json:"addr" description:"database host addr, or file path for sqlite"`
	Username string `json:"username" description:"database username"`
	Password string `json:"password" description:"database password"`
	Database string `json:"database" description:"database to use"`
	MaxConns int    `json:"maxConns" description:"max open connections"`
}

func NewDefaultOptions() *Options {
	return &Options{
		Driver:   DriverMySQL,
		Addr:     "saturn-mysql:3306",
		Username: "root",
		Password: "",
		Database: "saturn",
		MaxConns: 20,
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.StringVar(&o.Driver, utils.JoinFlagName(prefix, "driver"), o.Driver, "database driver, one of mysql, postgres, sqlite")
	fs.StringVar(&o.Addr, utils.JoinFlagName(prefix, "addr"), o.Addr, "database address")
	fs.StringVar(&o.Username, utils.JoinFlagName(prefix, "username"), o.Username, "database username")
	fs.StringVar(&o.Password, utils.JoinFlagName(prefix, "password"), o.Password, "database password")
	fs.StringVar(&o.Database, utils.JoinFlagName(prefix, "database"), o.Database, "database name")
	fs.IntVar(&o.MaxConns, utils.JoinFlagName(prefix, "max-conns"), o.MaxConns, "max open connections")
}

type Database struct {
	db      *gorm.DB
	options *Options
	*DatabaseHelper
}

func (o *Database) DB() *gorm.DB {
	return o.db
}

func (o *Database) Options() *Options {
	return o.options
}

func NewDatabase(options *Options) (*Database, error) {
	dialector, err := options.Dialector()
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         log.NewDefaultGormZapLogger(),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}
	if options.MaxConns > 0 && options.Driver != DriverSQLite {
		sqldb, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(options.MaxConns)
		sqldb.SetMaxIdleConns(options.MaxConns / 2)
		sqldb.SetConnMaxLifetime(30 * time.Minute)
	}
	return FromDB(db, options), nil
}

// FromDB wraps an opened gorm connection, tests use it with in-memory sqlite.
func FromDB(db *gorm.DB, options *Options) *Database {
	return &Database{
		db:             db,
		options:        options,
		DatabaseHelper: &DatabaseHelper{DB: db},
	}
}

func (opts *Options) Dialector() (gorm.Dialector, error) {
	switch opts.Driver {
	case DriverMySQL, "":
		return mysql.Open(opts.ToDsn()), nil
	case DriverPostgres:
		return postgres.Open(opts.ToDsn()), nil
	case DriverSQLite:
		return sqlite.Open(opts.ToDsn()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
}

func (opts *Options) ToDsn() string {
	switch opts.Driver {
	case DriverPostgres:
		host, port, err := net.SplitHostPort(opts.Addr)
		if err != nil {
			host, port = opts.Addr, "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			host, port, opts.Username, opts.Password, opts.Database)
	case DriverSQLite:
		if opts.Addr == "" {
			return "file::memory:?cache=shared"
		}
		return opts.Addr
	default:
		return opts.ToDriverConfig().FormatDSN()
	}
}

func (opts *Options) ToDriverConfig() *driver.Config {
	cfg := driver.NewConfig()
	cfg.User = opts.Username
	cfg.Passwd = opts.Password
	cfg.Net = "tcp"
	cfg.Addr = opts.Addr
	cfg.DBName = opts.Database
	cfg.ParseTime = true
	cfg.Collation = "utf8mb4_general_ci"
	cfg.Loc = time.UTC
	cfg.AllowNativePasswords = true
	return cfg
}
