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

import "errors"

var (
	ErrFileDoesNotExist  = errors.New("does not exist")
	ErrFileAlreadyExists = errors.New("already exists")
	ErrPathIsDirectory   = errors.New("is a directory")
	ErrPathIsFile        = errors.New("is a file")
	ErrMergeConflict     = errors.New("merge conflict")
)

// PathError records the path an error kind applies to.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return e.Err.Error() + ": " + e.Path
}

func (e *PathError) Unwrap() error {
	return e.Err
}

func FileDoesNotExist(path string) error {
	return &PathError{Path: path, Err: ErrFileDoesNotExist}
}

func FileAlreadyExists(path string) error {
	return &PathError{Path: path, Err: ErrFileAlreadyExists}
}

func PathIsDirectory(path string) error {
	return &PathError{Path: path, Err: ErrPathIsDirectory}
}

func PathIsFile(path string) error {
	return &PathError{Path: path, Err: ErrPathIsFile}
}

func MergeConflict(path string) error {
	return &PathError{Path: path, Err: ErrMergeConflict}
}

// IsNotExist reports whether err is (or wraps) ErrFileDoesNotExist.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrFileDoesNotExist)
}
