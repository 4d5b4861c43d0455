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
// Package authorization decides who may move what between environments.
package authorization

import "saturn.io/saturn/pkg/service/models"

// environmentChain is the only promotion path, a resource moves one stage at a time.
var environmentChain = []models.EnvironmentType{
	models.EnvironmentTypeDevelopment,
	models.EnvironmentTypeUAT,
	models.EnvironmentTypeProduction,
}

func stageOf(t models.EnvironmentType) int {
	for i, v := range environmentChain {
		if v == t {
			return i
		}
	}
	return -1
}

// NextEnvironmentType returns the stage following t, false when t is the last stage or unknown.
func NextEnvironmentType(t models.EnvironmentType) (models.EnvironmentType, bool) {
	i := stageOf(t)
	if i < 0 || i == len(environmentChain)-1 {
		return "", false
	}
	return environmentChain[i+1], true
}

// IsValidMigrationChain reports whether target is exactly the stage after source.
func IsValidMigrationChain(source, target models.EnvironmentType) bool {
	next, ok := NextEnvironmentType(source)
	return ok && next == target
}
