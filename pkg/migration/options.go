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
	"time"

	"github.com/spf13/pflag"
	"saturn.io/saturn/pkg/utils"
)

type Options struct {
	HealthCheckInterval time.Duration `json:"healthCheckInterval" description:"interval between health probes of a migrated application"`
	HealthCheckTimeout  time.Duration `json:"healthCheckTimeout" description:"how long to wait for a migrated application to become healthy"`
	DiskWarningPercent  int           `json:"diskWarningPercent" description:"disk usage percent of the target server reported as a warning"`
	DiskCriticalPercent int           `json:"diskCriticalPercent" description:"disk usage percent of the target server reported as critical"`
	DiskPath            string        `json:"diskPath" description:"path checked for free disk space on the target server"`
	StaleAfter          time.Duration `json:"staleAfter" description:"in progress migrations older than this are marked failed"`
	RotateCredentials   bool          `json:"rotateCredentials" description:"rotate database credentials when promoting to production"`
	CommandTimeout      time.Duration `json:"commandTimeout" description:"timeout of a remote dump, restore or rotation command"`
}

func NewDefaultOptions() *Options {
	return &Options{
		HealthCheckInterval: 5 * time.Second,
		HealthCheckTimeout:  3 * time.Minute,
		DiskWarningPercent:  80,
		DiskCriticalPercent: 95,
		DiskPath:            "/",
		StaleAfter:          2 * time.Hour,
		RotateCredentials:   true,
		CommandTimeout:      time.Hour,
	}
}

func (o *Options) RegistFlags(prefix string, fs *pflag.FlagSet) {
	fs.DurationVar(&o.HealthCheckInterval, utils.JoinFlagName(prefix, "health-check-interval"), o.HealthCheckInterval, "interval between health probes")
	fs.DurationVar(&o.HealthCheckTimeout, utils.JoinFlagName(prefix, "health-check-timeout"), o.HealthCheckTimeout, "max wait for a migrated application to become healthy")
	fs.IntVar(&o.DiskWarningPercent, utils.JoinFlagName(prefix, "disk-warning-percent"), o.DiskWarningPercent, "disk usage warning threshold")
	fs.IntVar(&o.DiskCriticalPercent, utils.JoinFlagName(prefix, "disk-critical-percent"), o.DiskCriticalPercent, "disk usage critical threshold")
	fs.StringVar(&o.DiskPath, utils.JoinFlagName(prefix, "disk-path"), o.DiskPath, "path checked for free disk space")
	fs.DurationVar(&o.StaleAfter, utils.JoinFlagName(prefix, "stale-after"), o.StaleAfter, "age after which an in progress migration is failed")
	fs.BoolVar(&o.RotateCredentials, utils.JoinFlagName(prefix, "rotate-credentials"), o.RotateCredentials, "rotate database credentials on production promotion")
	fs.DurationVar(&o.CommandTimeout, utils.JoinFlagName(prefix, "command-timeout"), o.CommandTimeout, "timeout of remote data commands")
}
