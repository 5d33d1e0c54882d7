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


package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"stagefs/internal/tree"
)

var lsLong bool

var lsCmd = &cobra.Command{
	Use:   "ls <root> [dir]",
	Short: "List files under a directory, honoring ignore rules",
	Long: `List every file below [dir] (default "/") as seen through a staging tree
over <root>. Paths hidden by the project's excludes or .gitignore files are
skipped; includes bring ignored paths back.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runLs,
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "Show mode and size")
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	proj, err := openProject(cmd, args[0])
	if err != nil {
		return err
	}
	dirPath := "/"
	if len(args) > 1 {
		dirPath = args[1]
	}

	dir, err := proj.newTree().GetDir(cmd.Context(), dirPath)
	if err != nil {
		return err
	}
	return dir.Visit(cmd.Context(), func(ctx context.Context, f *tree.File) error {
		if !lsLong {
			fmt.Fprintln(out, f.Path())
			return nil
		}
		st, err := f.Stat(ctx)
		if err != nil {
			return err
		}
		content, err := f.Content(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%04o %8d %s\n", st.Mode, len(content), f.Path())
		return nil
	})
}
