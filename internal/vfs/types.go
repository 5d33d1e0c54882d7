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

package vfs

import "os"

// FileType represents the type of a filesystem entry.
type FileType int

const (
	// FileTypeRegularFile is a regular file.
	FileTypeRegularFile FileType = iota
	// FileTypeDirectory is a directory.
	FileTypeDirectory
	// FileTypeOther covers symlinks, devices and anything else.
	FileTypeOther
)

func (t FileType) String() string {
	switch t {
	case FileTypeRegularFile:
		return "file"
	case FileTypeDirectory:
		return "directory"
	default:
		return "other"
	}
}

// DefaultFileMode is applied to files created without explicit options.
const DefaultFileMode uint32 = 0o666

// Stat is the metadata a store reports for a path.
// Only Mode takes part in equality.
type Stat struct {
	Mode uint32
	Type FileType
}

func (s Stat) IsFile() bool { return s.Type == FileTypeRegularFile }
func (s Stat) IsDir() bool  { return s.Type == FileTypeDirectory }

// Equal compares permission modes and ignores the entry type.
func (s Stat) Equal(other Stat) bool {
	return s.Mode == other.Mode
}

// Options returns the modifiable part of the stat.
func (s Stat) Options() *StatOptions {
	return &StatOptions{Mode: s.Mode}
}

// StatFromFileInfo converts an os.FileInfo into a Stat.
func StatFromFileInfo(fi os.FileInfo) Stat {
	st := Stat{Mode: uint32(fi.Mode().Perm())}
	switch {
	case fi.Mode().IsRegular():
		st.Type = FileTypeRegularFile
	case fi.IsDir():
		st.Type = FileTypeDirectory
	default:
		st.Type = FileTypeOther
	}
	return st
}

// StatOptions carries the stat fields a caller may set on write.
// A nil *StatOptions leaves metadata untouched.
type StatOptions struct {
	Mode uint32 `yaml:"mode" json:"mode"`
}

// MergeOver returns base with the fields of o applied on top.
func (o *StatOptions) MergeOver(base Stat) *StatOptions {
	merged := base.Options()
	if o != nil {
		merged.Mode = o.Mode
	}
	return merged
}

// Equal reports whether two option sets are identical. Nil equals nil only.
func (o *StatOptions) Equal(other *StatOptions) bool {
	if o == nil || other == nil {
		return o == other
	}
	return o.Mode == other.Mode
}

// DirListing holds the absolute paths of a directory's direct children.
type DirListing struct {
	Files []string
	Dirs  []string
}
