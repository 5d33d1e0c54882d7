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
	"fmt"

	"github.com/spf13/cobra"

	"stagefs/internal/plan"
	"stagefs/internal/tree"
)

var (
	applyStrategy string
	applyCommit   bool
	applySave     bool
	applyMessage  string
)

var applyCmd = &cobra.Command{
	Use:   "apply <root> <plan.yaml>...",
	Short: "Stage plan files over a directory and show the merged result",
	Long: `Stage each plan file on its own branch over <root>, then merge the branches
in the order given using the merge strategy. The merged actions are printed in
the order they would be written: deletes, moves, creates, overwrites.

Nothing is written to <root> unless --commit is given.

Examples:
  stagefs apply . rename.yaml
  stagefs apply . a.yaml b.yaml --strategy content-only
  stagefs apply ~/project refactor.yaml --save -m "split config" --commit`,
	Args: cobra.MinimumNArgs(2),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVarP(&applyStrategy, "strategy", "s", "", "Merge strategy (default from project config)")
	applyCmd.Flags().BoolVar(&applyCommit, "commit", false, "Write the merged actions to <root>")
	applyCmd.Flags().BoolVar(&applySave, "save", false, "Save the merged actions as a changeset")
	applyCmd.Flags().StringVarP(&applyMessage, "message", "m", "", "Changeset message (with --save)")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	proj, err := openProject(cmd, args[0])
	if err != nil {
		return err
	}
	strategy, err := proj.strategy(applyStrategy)
	if err != nil {
		return err
	}

	plans := make([]*plan.Plan, 0, len(args)-1)
	for _, path := range args[1:] {
		p, err := plan.Load(path)
		if err != nil {
			return err
		}
		plans = append(plans, p)
	}

	// Every branch starts from the untouched project so plans are independent.
	main := proj.newTree()
	branches := make([]*tree.Tree, len(plans))
	for i := range plans {
		branches[i] = main.Branch()
	}

	for i, p := range plans {
		if err := p.Apply(ctx, branches[i]); err != nil {
			return err
		}
		if err := main.Merge(ctx, branches[i], strategy); err != nil {
			return fmt.Errorf("merge %s (strategy %s): %w", p.Name, strategy, err)
		}
	}

	actions, err := main.ExportActions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Staged %d actions from %d plans:\n", len(actions), len(plans))
	printActions(out, actions)

	if applySave {
		j, err := openJournal()
		if err != nil {
			return err
		}
		defer j.Close()
		id, err := j.Save(ctx, applyMessage, strategy.String(), actions)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved changeset %s\n", id)
	}

	if applyCommit {
		if err := proj.commit(ctx, actions); err != nil {
			return err
		}
		fmt.Fprintf(out, "Committed %d actions to %s\n", len(actions), proj.root)
	}
	return nil
}
