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
	"net"
	"net/url"
	"regexp"
	"strings"

	"saturn.io/saturn/pkg/service/models"
)

var tldPattern = regexp.MustCompile(`^[a-zA-Z]{2,63}$`)

// NormalizeFQDN cleans a user supplied domain, https is assumed when no scheme is given.
func NormalizeFQDN(raw string) (string, error) {
	fqdn := strings.TrimSpace(raw)
	fqdn = strings.TrimRight(fqdn, "/")
	if fqdn == "" {
		return "", Invalid("Domain must not be empty.")
	}
	if !strings.Contains(fqdn, "://") {
		fqdn = "https://" + fqdn
	}
	u, err := url.Parse(fqdn)
	if err != nil {
		return "", Invalid("Invalid domain %q: %v", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", Invalid("Domain %q must use http or https.", raw)
	}
	host := u.Hostname()
	if host == "" {
		return "", Invalid("Domain %q has no host.", raw)
	}
	if net.ParseIP(host) != nil {
		return "", Invalid("Domain %q must not be an IP address.", raw)
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 || !tldPattern.MatchString(labels[len(labels)-1]) {
		return "", Invalid("Domain %q has no valid top level domain.", raw)
	}
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

type DomainResult struct {
	FQDN          string `json:"fqdn"`
	PreviousFQDN  string `json:"previous_fqdn,omitempty"`
	LabelsUpdated bool   `json:"labels_updated"`
}

// AssignProductionDomain sets the domain of an application and moves its custom proxy labels to the new host.
func AssignProductionDomain(store *Store, r models.Resource, raw string) (*DomainResult, error) {
	app, ok := r.(*models.Application)
	if !ok {
		return nil, Invalid("Assigning a domain is only supported for applications.")
	}
	fqdn, err := NormalizeFQDN(raw)
	if err != nil {
		return nil, err
	}
	result := &DomainResult{FQDN: fqdn, PreviousFQDN: app.FQDN}
	updates := map[string]interface{}{"fqdn": fqdn}
	if labels, changed := replaceLabelHost(app.CustomLabels, hostOf(app.FQDN), hostOf(fqdn)); changed {
		updates["custom_labels"] = labels
		result.LabelsUpdated = true
	}
	if err := store.DB.Model(app).Updates(updates).Error; err != nil {
		return nil, err
	}
	app.FQDN = fqdn
	if result.LabelsUpdated {
		app.CustomLabels = updates["custom_labels"].(string)
	}
	return result, nil
}

// hostOf returns the host of the first domain of a comma separated fqdn list.
func hostOf(fqdn string) string {
	first, _, _ := strings.Cut(fqdn, ",")
	first = strings.TrimSpace(first)
	if first == "" {
		return ""
	}
	if !strings.Contains(first, "://") {
		first = "https://" + first
	}
	u, err := url.Parse(first)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func replaceLabelHost(labels, oldHost, newHost string) (string, bool) {
	if labels == "" || oldHost == "" || oldHost == newHost || !strings.Contains(labels, oldHost) {
		return labels, false
	}
	return strings.ReplaceAll(labels, oldHost, newHost), true
}
