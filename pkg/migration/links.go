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
	"fmt"

	"saturn.io/saturn/pkg/service/models"
	"saturn.io/saturn/pkg/utils/database"
	"saturn.io/saturn/pkg/utils/set"
)

type LinksResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	// Counterparts maps uuids of linked source environment resources to their target environment twin.
	Counterparts map[string]string `json:"-"`
}

// LinkMeta is how a link injects its target into the source resource.
type LinkMeta struct {
	InjectAs       string
	AutoInject     bool
	UseExternalURL bool
}

type linkCloner struct {
	store     *Store
	processed *set.Set[string]
}

// CloneLinks recreates the links of source in the target environment around target.
// A link whose other end has no counterpart in the target environment is skipped.
// Running it twice creates nothing the second time.
func CloneLinks(store *Store, source, target models.Resource, sourceEnv, targetEnv *models.Environment) (*LinksResult, error) {
	c := &linkCloner{store: store, processed: set.NewSet[string]()}
	result := &LinksResult{Counterparts: map[string]string{}}
	ref := models.RefOf(source)

	outgoing := []models.ResourceLink{}
	if err := store.DB.Where("source_type = ? AND source_id = ? AND environment_id = ?", ref.Kind, ref.ID, sourceEnv.ID).
		Find(&outgoing).Error; err != nil {
		return nil, err
	}
	for _, link := range outgoing {
		other, counterpart, err := c.findCorrespondingResource(link.Target(), targetEnv)
		if err != nil {
			return nil, err
		}
		if counterpart == nil {
			result.Skipped++
			continue
		}
		result.Counterparts[other.GetUUID()] = counterpart.GetUUID()
		created, err := c.createLink(target, counterpart, targetEnv, LinkMeta{
			InjectAs:       link.InjectAs,
			AutoInject:     link.AutoInject,
			UseExternalURL: link.UseExternalURL,
		})
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		}
	}

	incoming := []models.ResourceLink{}
	if err := store.DB.Where("target_type = ? AND target_id = ? AND environment_id = ?", ref.Kind, ref.ID, sourceEnv.ID).
		Find(&incoming).Error; err != nil {
		return nil, err
	}
	for _, link := range incoming {
		other, counterpart, err := c.findCorrespondingResource(link.Source(), targetEnv)
		if err != nil {
			return nil, err
		}
		if counterpart == nil {
			result.Skipped++
			continue
		}
		result.Counterparts[other.GetUUID()] = counterpart.GetUUID()
		created, err := c.createLink(counterpart, target, targetEnv, LinkMeta{
			InjectAs:       link.InjectAs,
			AutoInject:     link.AutoInject,
			UseExternalURL: link.UseExternalURL,
		})
		if err != nil {
			return nil, err
		}
		if created {
			result.Created++
		}
	}
	return result, nil
}

// findCorrespondingResource returns the resource behind ref and its same named twin in env, nil twin if none.
func (c *linkCloner) findCorrespondingResource(ref models.ResourceRef, env *models.Environment) (models.Resource, models.Resource, error) {
	other, err := c.store.Find(ref)
	if err != nil {
		if IsKind(err, ErrorKindNotFound) || IsKind(err, ErrorKindInvalid) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if other.GetEnvironmentID() == env.ID {
		return other, other, nil
	}
	counterpart, err := c.store.FindInEnvironment(ref.Kind, other.GetName(), env.ID)
	if err != nil {
		return nil, nil, err
	}
	return other, counterpart, nil
}

func (c *linkCloner) createLink(from, to models.Resource, env *models.Environment, meta LinkMeta) (bool, error) {
	link := models.ResourceLink{
		SourceType:    from.Kind(),
		SourceID:      from.GetID(),
		TargetType:    to.Kind(),
		TargetID:      to.GetID(),
		EnvironmentID: env.ID,
	}
	key := fmt.Sprintf("%s:%d:%s:%d:%d", link.SourceType, link.SourceID, link.TargetType, link.TargetID, link.EnvironmentID)
	if c.processed.Has(key) {
		return false, nil
	}
	c.processed.Append(key)

	var count int64
	if err := c.store.DB.Model(&models.ResourceLink{}).Where(&link).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	link.InjectAs = meta.InjectAs
	link.AutoInject = meta.AutoInject
	link.UseExternalURL = meta.UseExternalURL
	if err := c.store.DB.Create(&link).Error; err != nil {
		if database.IsDuplicateKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
