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
	"sort"
	"strings"

	"saturn.io/saturn/pkg/service/models"
)

// RewireChange reports one rewritten variable, values are masked.
type RewireChange struct {
	Key string `json:"key"`
	Old string `json:"old"`
	New string `json:"new"`
}

// RewireValue replaces every source uuid of uuidMap found in value with its target uuid.
func RewireValue(value string, uuidMap map[string]string) (string, bool) {
	if value == "" {
		return value, false
	}
	// longer uuids first, a uuid never gets replaced inside another one
	olds := make([]string, 0, len(uuidMap))
	for old := range uuidMap {
		if old != "" {
			olds = append(olds, old)
		}
	}
	sort.Slice(olds, func(i, j int) bool { return len(olds[i]) > len(olds[j]) })
	pairs := make([]string, 0, 2*len(olds))
	matched := false
	for _, old := range olds {
		if strings.Contains(value, old) {
			matched = true
		}
		pairs = append(pairs, old, uuidMap[old])
	}
	if !matched {
		return value, false
	}
	replaced := strings.NewReplacer(pairs...).Replace(value)
	return replaced, replaced != value
}

// RewireConnections rewrites the variables of target pointing at source environment resources.
// A connection variable injected by a database link is rebuilt from the linked database,
// credentials included. Any other variable only gets its known uuids replaced.
// Only changed variables are saved.
func RewireConnections(store *Store, target models.Resource, uuidMap map[string]string) ([]RewireChange, error) {
	ref := models.RefOf(target)
	vars, err := store.EnvironmentVariables(ref)
	if err != nil {
		return nil, err
	}
	fallback, err := injectedURLs(store, target)
	if err != nil {
		return nil, err
	}
	changes := []RewireChange{}
	for _, v := range vars {
		if v.Value == "" {
			continue
		}
		newValue, ok := tryRewireVariable(v, fallback)
		if !ok {
			newValue, ok = RewireValue(v.Value, uuidMap)
		}
		if !ok {
			continue
		}
		if err := store.DB.Model(&models.EnvironmentVariable{}).Where("id = ?", v.ID).Update("value", newValue).Error; err != nil {
			return nil, err
		}
		changes = append(changes, RewireChange{
			Key: v.Key,
			Old: MaskSensitiveValue(v.Value),
			New: MaskSensitiveValue(newValue),
		})
	}
	return changes, nil
}

// tryRewireVariable rebuilds a connection variable from the url of the linked database injected under its key.
func tryRewireVariable(v models.EnvironmentVariable, urls map[string]string) (string, bool) {
	if !IsConnectionVariable(v.Key) {
		return "", false
	}
	url, ok := urls[v.Key]
	if !ok || url == "" || url == v.Value {
		return "", false
	}
	return url, true
}

// injectedURLs maps the inject_as key of every database link of r to the url the link injects.
func injectedURLs(store *Store, r models.Resource) (map[string]string, error) {
	ref := models.RefOf(r)
	links := []models.ResourceLink{}
	if err := store.DB.Where("source_type = ? AND source_id = ? AND environment_id = ?", ref.Kind, ref.ID, r.GetEnvironmentID()).
		Find(&links).Error; err != nil {
		return nil, err
	}
	ret := map[string]string{}
	for _, link := range links {
		if link.InjectAs == "" || !link.TargetType.IsDatabase() {
			continue
		}
		linked, err := store.Find(link.Target())
		if err != nil {
			if IsKind(err, ErrorKindNotFound) {
				continue
			}
			return nil, err
		}
		db, ok := linked.(*models.Database)
		if !ok {
			continue
		}
		if link.UseExternalURL {
			server, err := store.ServerOfDestination(db.DestinationID)
			if err != nil {
				continue
			}
			ret[link.InjectAs] = db.ExternalURL(server.IP)
		} else {
			ret[link.InjectAs] = db.InternalURL()
		}
	}
	return ret, nil
}
