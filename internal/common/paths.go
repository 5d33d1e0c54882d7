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

package common

import (
	"path"
	"strings"
)

// CleanPath returns the absolute, slash-separated form of p.
// Relative paths are resolved against the root.
func CleanPath(p string) string {
	if p == "" {
		return "/"
	}
	return path.Clean("/" + p)
}

// SplitPath splits a path into its components
func SplitPath(p string) []string {
	p = strings.TrimPrefix(CleanPath(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// JoinPath joins path components into a clean absolute path
func JoinPath(parts ...string) string {
	return CleanPath(path.Join(parts...))
}

// ResolvePath resolves name relative to base. An absolute name ignores base.
func ResolvePath(base, name string) string {
	if strings.HasPrefix(name, "/") {
		return CleanPath(name)
	}
	return JoinPath(CleanPath(base), name)
}

// ParentPath returns the parent directory of a path. The parent of the root is the root.
func ParentPath(p string) string {
	return path.Dir(CleanPath(p))
}

// BaseName returns the base name of a path
func BaseName(p string) string {
	p = CleanPath(p)
	if p == "/" {
		return ""
	}
	return path.Base(p)
}

// IsWithin reports whether p equals dir or lies beneath it.
func IsWithin(p, dir string) bool {
	p, dir = CleanPath(p), CleanPath(dir)
	if dir == "/" || p == dir {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}
