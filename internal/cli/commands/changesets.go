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
	"text/tabwriter"

	"github.com/spf13/cobra"

	"stagefs/internal/plan"
)

var (
	showPlan       bool
	replayStrategy string
	replayCommit   bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "List saved changesets, newest first",
	Args:  cobra.NoArgs,
	RunE:  runLog,
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the actions of a saved changeset",
	Long: `Print the actions of a saved changeset. The id may be shortened to any
unique prefix.

With --plan the changeset is printed as a plan file that can be passed to
'stagefs apply'.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var replayCmd = &cobra.Command{
	Use:   "replay <id> <root>",
	Short: "Merge a saved changeset into a directory",
	Long: `Stage a saved changeset over <root> using the merge strategy and print the
result. Nothing is written to <root> unless --commit is given.

Examples:
  stagefs replay 3f2a9c1e .
  stagefs replay 3f2a9c1e ~/project --strategy overwrite --commit`,
	Args: cobra.ExactArgs(2),
	RunE: runReplay,
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a saved changeset",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

func init() {
	showCmd.Flags().BoolVar(&showPlan, "plan", false, "Print as a plan file")
	replayCmd.Flags().StringVarP(&replayStrategy, "strategy", "s", "", "Merge strategy (default from project config)")
	replayCmd.Flags().BoolVar(&replayCommit, "commit", false, "Write the merged actions to <root>")
	rootCmd.AddCommand(logCmd, showCmd, replayCmd, rmCmd)
}

func runLog(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	changesets, err := j.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(changesets) == 0 {
		fmt.Fprintln(out, "No changesets")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tACTIONS\tSTRATEGY\tMESSAGE")
	for _, cs := range changesets {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			cs.ShortID(), cs.CreatedAt.Format("2006-01-02 15:04:05"), cs.ActionCount, cs.Strategy, cs.Message)
	}
	return w.Flush()
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	cs, err := j.Get(ctx, args[0])
	if err != nil {
		return err
	}
	actions, err := j.Load(ctx, cs.ID)
	if err != nil {
		return err
	}

	if showPlan {
		name := cs.Message
		if name == "" {
			name = cs.ID
		}
		data, err := plan.FromActions(name, actions).Marshal()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	fmt.Fprintf(out, "Changeset: %s\n", cs.ID)
	fmt.Fprintf(out, "Created: %s\n", cs.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Strategy: %s\n", cs.Strategy)
	if cs.Message != "" {
		fmt.Fprintf(out, "Message: %s\n", cs.Message)
	}
	fmt.Fprintf(out, "Actions: %d\n", len(actions))
	printActions(out, actions)
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	proj, err := openProject(cmd, args[1])
	if err != nil {
		return err
	}
	strategy, err := proj.strategy(replayStrategy)
	if err != nil {
		return err
	}

	cs, err := j.Get(ctx, args[0])
	if err != nil {
		return err
	}
	saved, err := j.Load(ctx, cs.ID)
	if err != nil {
		return err
	}

	t := proj.newTree()
	if err := t.Merge(ctx, saved, strategy); err != nil {
		return fmt.Errorf("replay %s (strategy %s): %w", cs.ShortID(), strategy, err)
	}
	actions, err := t.ExportActions(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Replayed %s onto %s:\n", cs.ShortID(), proj.root)
	printActions(out, actions)

	if replayCommit {
		if err := proj.commit(ctx, actions); err != nil {
			return err
		}
		fmt.Fprintf(out, "Committed %d actions to %s\n", len(actions), proj.root)
	}
	return nil
}

func runRm(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	if err := j.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted changeset %s\n", args[0])
	return nil
}
