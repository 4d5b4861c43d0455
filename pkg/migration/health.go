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
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"k8s.io/apimachinery/pkg/util/wait"
	"saturn.io/saturn/pkg/service/models"
)

type HealthResult struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

// HealthChecker polls the health endpoint of a deployed application.
type HealthChecker struct {
	client   *resty.Client
	interval time.Duration
	timeout  time.Duration
}

func NewHealthChecker(options *Options) *HealthChecker {
	return &HealthChecker{
		client:   resty.New().SetTimeout(10 * time.Second),
		interval: options.HealthCheckInterval,
		timeout:  options.HealthCheckTimeout,
	}
}

// HealthURL is the first domain of app joined with its health check path, empty without a domain.
func HealthURL(app *models.Application) string {
	first, _, _ := strings.Cut(app.FQDN, ",")
	first = strings.TrimRight(strings.TrimSpace(first), "/")
	if first == "" {
		return ""
	}
	if !strings.Contains(first, "://") {
		first = "https://" + first
	}
	path := app.HealthCheckPath
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return first + path
}

// Wait returns once app answers its health check or the timeout elapsed, no error escapes.
func (h *HealthChecker) Wait(ctx context.Context, app *models.Application) *HealthResult {
	url := HealthURL(app)
	if url == "" {
		return &HealthResult{Message: "Application has no domain, health check skipped."}
	}
	var last string
	err := wait.PollUntilContextTimeout(ctx, h.interval, h.timeout, true, func(ctx context.Context) (bool, error) {
		resp, err := h.client.R().SetContext(ctx).Get(url)
		if err != nil {
			// the deadline cancelling the request is not a result of the check
			if ctx.Err() == nil {
				last = err.Error()
			}
			return false, nil
		}
		if resp.StatusCode() >= 200 && resp.StatusCode() < 400 {
			return true, nil
		}
		last = fmt.Sprintf("status %d", resp.StatusCode())
		return false, nil
	})
	if err != nil {
		msg := fmt.Sprintf("Health check of %s did not pass within %s", url, h.timeout)
		if last != "" {
			msg += ", last result: " + last
		}
		return &HealthResult{Message: msg + "."}
	}
	return &HealthResult{Healthy: true, Message: fmt.Sprintf("Health check of %s passed.", url)}
}
