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

// Package workflow is a small durable task queue.
//
// Flow:
//
//   - a client submits a task, the task is stored in kv and published on the "submit" queue
//   - a server consumes the task and runs its first unfinished step with a registered function
//   - after each successful step the task is re-published so the next step may run on any server
//   - the task finishes on the first step error or when every step succeeded
//
// Step functions are plain go functions registered by name. A leading context.Context
// argument receives the step context, the remaining arguments are decoded from json.
package workflow
