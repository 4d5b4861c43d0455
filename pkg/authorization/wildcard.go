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

package authorization

import "strings"

const (
	sectionSep  = ":"
	anyOfSep    = ","
	wildcard    = "*"
	wildcardAll = "**"
)

// WildcardMatch matches a permission like "migrations:approve" against a policy expression,
// "*" matches one section, "**" matches the rest, "a,b" matches any of the listed values.
func WildcardMatch(expr, perm string) bool {
	expr, perm = strings.TrimSpace(expr), strings.TrimSpace(perm)
	if expr == "" || perm == "" {
		return false
	}
	return matchSections(strings.Split(expr, sectionSep), strings.Split(perm, sectionSep))
}

func matchSections(exprs, perms []string) bool {
	if len(exprs) == 0 {
		return len(perms) == 0
	}
	head := strings.Split(exprs[0], anyOfSep)
	if containsString(head, wildcardAll) {
		return true
	}
	if len(perms) == 0 {
		// trailing wildcards match missing sections
		for _, e := range exprs {
			if e != wildcard && e != wildcardAll {
				return false
			}
		}
		return true
	}
	if !containsString(head, wildcard) && !containsString(head, perms[0]) {
		return false
	}
	return matchSections(exprs[1:], perms[1:])
}

func containsString(arr []string, s string) bool {
	for _, v := range arr {
		if v == s {
			return true
		}
	}
	return false
}

func wildcardMatchFunc(args ...interface{}) (interface{}, error) {
	if len(args) < 2 {
		return false, nil
	}
	perm, ok1 := args[0].(string)
	expr, ok2 := args[1].(string)
	if !ok1 || !ok2 {
		return false, nil
	}
	return WildcardMatch(expr, perm), nil
}
