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
	"strconv"
	"strings"

	"saturn.io/saturn/pkg/log"
	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/remote"
	"saturn.io/saturn/pkg/utils/set"
)

const (
	CheckNameSourceHealth       = "source_health"
	CheckNameActiveMigration    = "active_migration"
	CheckNameTargetServer       = "target_server"
	CheckNameTargetExists       = "target_exists"
	CheckNameEnvVarCompleteness = "env_var_completeness"
	CheckNameConfigDrift        = "config_drift"
	CheckNameDiskSpace          = "disk_space"
	CheckNamePortConflicts      = "port_conflicts"
)

type CheckResult struct {
	Pass     bool        `json:"pass"`
	Critical bool        `json:"critical,omitempty"`
	Message  string      `json:"message"`
	Details  interface{} `json:"details,omitempty"`
}

// PreCheckResult errors block the migration, warnings are shown to the requester and approver.
type PreCheckResult struct {
	Pass     bool                   `json:"pass"`
	Errors   []string               `json:"errors"`
	Warnings []string               `json:"warnings"`
	Checks   map[string]CheckResult `json:"checks"`
}

func newPreCheckResult() *PreCheckResult {
	return &PreCheckResult{Pass: true, Errors: []string{}, Warnings: []string{}, Checks: map[string]CheckResult{}}
}

func (r *PreCheckResult) fail(name string, check CheckResult) {
	r.Checks[name] = check
	r.Errors = append(r.Errors, check.Message)
	r.Pass = false
}

func (r *PreCheckResult) warn(name string, check CheckResult, warnings ...string) {
	r.Checks[name] = check
	if len(warnings) == 0 {
		warnings = []string{check.Message}
	}
	r.Warnings = append(r.Warnings, warnings...)
}

type PreCheckInput struct {
	Source       models.Resource
	SourceEnv    *models.Environment
	TargetEnv    *models.Environment
	TargetServer *models.Server
	// IgnoreMigrationID is the migration being executed, it does not count as a concurrent one.
	IgnoreMigrationID uint
}

type PreChecker struct {
	store   *Store
	exec    remote.Executor
	options *Options
}

func NewPreChecker(store *Store, exec remote.Executor, options *Options) *PreChecker {
	return &PreChecker{store: store, exec: exec, options: options}
}

func (c *PreChecker) Run(ctx context.Context, in PreCheckInput) (*PreCheckResult, error) {
	log := log.FromContextOrDiscard(ctx).WithValues("source", in.Source.GetUUID())
	store := c.store.WithContext(ctx)
	result := newPreCheckResult()

	if check := CheckStatusHealth(in.Source.GetStatus()); check.Pass {
		result.Checks[CheckNameSourceHealth] = check
	} else {
		result.fail(CheckNameSourceHealth, check)
	}

	active, err := store.ActiveMigration(models.RefOf(in.Source))
	if err != nil {
		return nil, err
	}
	if active != nil && active.ID != in.IgnoreMigrationID {
		result.fail(CheckNameActiveMigration, CheckResult{
			Message: fmt.Sprintf("Resource already has an active migration %s (%s).", active.UUID, active.Status),
			Details: map[string]string{"uuid": active.UUID, "status": string(active.Status)},
		})
	} else {
		result.Checks[CheckNameActiveMigration] = CheckResult{Pass: true, Message: "No active migration."}
	}

	if check := c.checkTargetServer(ctx, in.TargetServer); check.Pass {
		result.Checks[CheckNameTargetServer] = check
	} else {
		result.fail(CheckNameTargetServer, check)
	}

	existing, err := store.FindInEnvironment(in.Source.Kind(), in.Source.GetName(), in.TargetEnv.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		result.Checks[CheckNameTargetExists] = CheckResult{
			Pass:    true,
			Message: fmt.Sprintf("%s already exists in %s and will be updated.", existing.GetName(), in.TargetEnv.Name),
			Details: map[string]interface{}{"exists": true, "uuid": existing.GetUUID()},
		}
	} else {
		result.Checks[CheckNameTargetExists] = CheckResult{
			Pass:    true,
			Message: fmt.Sprintf("%s will be created in %s.", in.Source.GetName(), in.TargetEnv.Name),
			Details: map[string]interface{}{"exists": false},
		}
	}

	if in.TargetEnv.IsProduction() {
		vars, err := store.EnvironmentVariables(models.RefOf(in.Source))
		if err != nil {
			return nil, err
		}
		if check, warnings := CheckEnvVarCompleteness(vars); check.Pass {
			result.Checks[CheckNameEnvVarCompleteness] = check
		} else {
			result.warn(CheckNameEnvVarCompleteness, check, warnings...)
		}
	}

	if existing != nil {
		check, warnings, err := CheckConfigDrift(in.Source, existing)
		if err != nil {
			return nil, err
		}
		if check.Pass {
			result.Checks[CheckNameConfigDrift] = check
		} else {
			result.warn(CheckNameConfigDrift, check, warnings...)
		}
	}

	usage, err := remote.DiskUsagePercent(ctx, c.exec, in.TargetServer.Target(), c.options.DiskPath)
	if err != nil {
		log.Error(err, "check disk usage", "server", in.TargetServer.Name)
	}
	switch check := EvaluateDiskUsage(usage, err, c.options.DiskWarningPercent, c.options.DiskCriticalPercent); {
	case check.Pass:
		result.Checks[CheckNameDiskSpace] = check
	case check.Critical:
		result.fail(CheckNameDiskSpace, check)
	default:
		result.warn(CheckNameDiskSpace, check)
	}

	check, err := c.checkPortConflicts(store, in.Source, existing, in.TargetServer)
	if err != nil {
		return nil, err
	}
	if check.Pass {
		result.Checks[CheckNamePortConflicts] = check
	} else {
		result.warn(CheckNamePortConflicts, check)
	}
	return result, nil
}

// CheckStatusHealth resources without a status get the benefit of the doubt.
func CheckStatusHealth(status string) CheckResult {
	if status == "" {
		return CheckResult{Pass: true, Message: "Source reports no status."}
	}
	lower := strings.ToLower(status)
	for _, bad := range []string{"exited", "degraded", "unhealthy"} {
		if strings.Contains(lower, bad) {
			return CheckResult{Message: fmt.Sprintf("Source resource is not healthy (%s).", status)}
		}
	}
	return CheckResult{Pass: true, Message: fmt.Sprintf("Source resource is healthy (%s).", status)}
}

func (c *PreChecker) checkTargetServer(ctx context.Context, server *models.Server) CheckResult {
	if len(server.Destinations) == 0 {
		return CheckResult{Message: fmt.Sprintf("Target server %s has no destination to deploy into.", server.Name)}
	}
	if !server.IsUsable {
		return CheckResult{Message: fmt.Sprintf("Target server %s is not usable.", server.Name)}
	}
	if err := c.exec.Ping(ctx, server.Target()); err != nil {
		return CheckResult{Message: fmt.Sprintf("Target server %s is not reachable: %v", server.Name, err)}
	}
	return CheckResult{Pass: true, Message: fmt.Sprintf("Target server %s is reachable.", server.Name)}
}

// CheckEnvVarCompleteness flags variables with an empty value.
func CheckEnvVarCompleteness(vars []models.EnvironmentVariable) (CheckResult, []string) {
	empty := []string{}
	warnings := []string{}
	for _, v := range vars {
		if strings.TrimSpace(v.Value) == "" {
			empty = append(empty, v.Key)
			warnings = append(warnings, fmt.Sprintf("Environment variable %s has an empty value.", v.Key))
		}
	}
	if len(empty) == 0 {
		return CheckResult{Pass: true, Message: "All environment variables have a value."}, nil
	}
	return CheckResult{
		Message: fmt.Sprintf("%d environment variables have an empty value.", len(empty)),
		Details: empty,
	}, warnings
}

// CheckConfigDrift compares configuration fields of source and its existing counterpart.
func CheckConfigDrift(source, target models.Resource) (CheckResult, []string, error) {
	spec, _ := source.Kind().Spec()
	src, err := models.AttributesOf(source)
	if err != nil {
		return CheckResult{}, nil, err
	}
	dst, err := models.AttributesOf(target)
	if err != nil {
		return CheckResult{}, nil, err
	}
	drift := map[string]AttributeChange{}
	warnings := []string{}
	for _, field := range spec.ConfigFields {
		if fmt.Sprint(src[field]) == fmt.Sprint(dst[field]) {
			continue
		}
		drift[field] = AttributeChange{Old: maskField(field, dst[field]), New: maskField(field, src[field])}
		warnings = append(warnings, fmt.Sprintf("Configuration drift on %s.", field))
	}
	if len(drift) == 0 {
		return CheckResult{Pass: true, Message: "Target configuration matches the source."}, nil, nil
	}
	return CheckResult{
		Message: fmt.Sprintf("%d configuration fields differ between source and target.", len(drift)),
		Details: drift,
	}, warnings, nil
}

// EvaluateDiskUsage grades a disk usage percent, a failed probe is a non critical failure.
func EvaluateDiskUsage(usage int, probeErr error, warning, critical int) CheckResult {
	details := map[string]int{"usage": usage}
	switch {
	case probeErr != nil:
		return CheckResult{Message: fmt.Sprintf("Could not check disk space: %v", probeErr)}
	case usage >= critical:
		return CheckResult{Critical: true, Message: fmt.Sprintf("Disk usage of the target server is critical (%d%%).", usage), Details: details}
	case usage >= warning:
		return CheckResult{Message: fmt.Sprintf("Disk usage of the target server is high (%d%%).", usage), Details: details}
	default:
		return CheckResult{Pass: true, Message: fmt.Sprintf("Disk usage is %d%%.", usage), Details: details}
	}
}

// ExtractPorts returns the distinct host ports of a "host:container" mapping list,
// "ip:host:container" and "/proto" suffixes are understood.
func ExtractPorts(mapping string) []int {
	ports := set.NewSet[int]()
	for _, item := range strings.Split(mapping, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		item, _, _ = strings.Cut(item, "/")
		parts := strings.Split(item, ":")
		if len(parts) < 2 {
			continue
		}
		port, err := strconv.Atoi(parts[len(parts)-2])
		if err != nil || port <= 0 {
			continue
		}
		ports.Append(port)
	}
	return ports.Slice()
}

func (c *PreChecker) checkPortConflicts(store *Store, source, existing models.Resource, server *models.Server) (CheckResult, error) {
	ports := ExtractPorts(PortsMappingOf(source))
	if len(ports) == 0 {
		return CheckResult{Pass: true, Message: "No host ports mapped."}, nil
	}
	others, err := store.ResourcesOnServer(server.ID)
	if err != nil {
		return CheckResult{}, err
	}
	wanted := set.NewSet(ports...)
	conflicts := map[int]string{}
	for _, other := range others {
		if models.RefOf(other) == models.RefOf(source) {
			continue
		}
		if existing != nil && models.RefOf(other) == models.RefOf(existing) {
			continue
		}
		for _, p := range ExtractPorts(PortsMappingOf(other)) {
			if wanted.Has(p) {
				conflicts[p] = other.GetName()
			}
		}
	}
	if len(conflicts) == 0 {
		return CheckResult{Pass: true, Message: "No host port conflicts."}, nil
	}
	msgs := []string{}
	for _, p := range ports {
		if name, ok := conflicts[p]; ok {
			msgs = append(msgs, fmt.Sprintf("%d (used by %s)", p, name))
		}
	}
	return CheckResult{
		Message: fmt.Sprintf("Host ports already bound on %s: %s.", server.Name, strings.Join(msgs, ", ")),
		Details: conflicts,
	}, nil
}
