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

import (
	"errors"
	"fmt"
	"io/fs"

	"stagefs/internal/common"
)

// translateError maps filesystem errors onto the staging error kinds.
// Errors that already carry a staging kind pass through unchanged.
func translateError(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var pe *common.PathError
	if errors.As(err, &pe) {
		return err
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return common.FileDoesNotExist(path)
	case errors.Is(err, fs.ErrExist):
		return common.FileAlreadyExists(path)
	default:
		return fmt.Errorf("%s %s: %w", op, path, err)
	}
}
