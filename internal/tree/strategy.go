// Copyright 2024 LatentFS Authors
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

package tree

import (
	"fmt"
	"strings"
)

// MergeStrategy is a set of conflict-tolerance flags used by Tree.Merge.
type MergeStrategy uint8

const (
	AllowOverwriteConflict MergeStrategy = 1 << 1
	AllowCreationConflict  MergeStrategy = 1 << 2
	AllowDeleteConflict    MergeStrategy = 1 << 3

	// MergeDefault tolerates no conflicts.
	MergeDefault MergeStrategy = 0
	// MergeError is an explicit strict marker. It behaves like MergeDefault.
	MergeError MergeStrategy = 1 << 0
	// MergeContentOnly only lets content conflicts through.
	MergeContentOnly = AllowOverwriteConflict
	// MergeOverwrite lets the incoming change win every conflict it can.
	MergeOverwrite = AllowOverwriteConflict | AllowCreationConflict | AllowDeleteConflict
)

// Has reports whether every bit of flag is set.
func (s MergeStrategy) Has(flag MergeStrategy) bool {
	return s&flag == flag
}

var strategyNames = map[string]MergeStrategy{
	"default":      MergeDefault,
	"error":        MergeError,
	"content-only": MergeContentOnly,
	"overwrite":    MergeOverwrite,
}

var flagNames = []struct {
	flag MergeStrategy
	name string
}{
	{MergeError, "error"},
	{AllowOverwriteConflict, "allow-overwrite"},
	{AllowCreationConflict, "allow-create"},
	{AllowDeleteConflict, "allow-delete"},
}

func (s MergeStrategy) String() string {
	switch s {
	case MergeDefault:
		return "default"
	case MergeContentOnly:
		return "content-only"
	case MergeOverwrite:
		return "overwrite"
	}

	var parts []string
	for _, f := range flagNames {
		if s.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "+")
}

// ParseMergeStrategy accepts a named strategy ("default", "error",
// "content-only", "overwrite") or flags joined with "+", e.g.
// "allow-overwrite+allow-delete".
func ParseMergeStrategy(s string) (MergeStrategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return MergeDefault, nil
	}
	if named, ok := strategyNames[s]; ok {
		return named, nil
	}

	var out MergeStrategy
	for _, part := range strings.Split(s, "+") {
		found := false
		for _, f := range flagNames {
			if f.name == part {
				out |= f.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown merge strategy %q", part)
		}
	}
	return out, nil
}
