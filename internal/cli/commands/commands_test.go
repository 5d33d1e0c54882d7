package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"stagefs/internal/common"
	"stagefs/internal/config"
)

// runCLI executes the root command in-process with fresh flag values.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.PersistentFlags().VisitAll(reset)
	cmd.Flags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// setupEnv isolates the config dir and returns a project root holding files.
func setupEnv(t *testing.T, files map[string]string) string {
	t.Helper()
	t.Setenv(config.EnvConfigDir, filepath.Join(t.TempDir(), "config"))
	root := t.TempDir()
	writeFiles(t, root, files)
	return root
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

var savedID = regexp.MustCompile(`Saved changeset ([0-9a-f-]{36})`)

func TestApply(t *testing.T) {
	t.Run("stages without touching disk", func(t *testing.T) {
		g := NewWithT(t)
		root := setupEnv(t, map[string]string{"a.txt": "alpha", "old.txt": "bye"})
		plans := t.TempDir()
		writeFiles(t, plans, map[string]string{
			"move.yaml":   "ops:\n  - op: move\n    path: /a.txt\n    to: /b.txt\n",
			"create.yaml": "ops:\n  - op: create\n    path: /c.txt\n    content: c\n  - op: delete\n    path: /old.txt\n",
		})

		out, err := runCLI(t, "apply", root, filepath.Join(plans, "move.yaml"), filepath.Join(plans, "create.yaml"))
		g.Expect(err).NotTo(HaveOccurred(), out)
		g.Expect(out).To(ContainSubstring("Staged 3 actions from 2 plans"))
		g.Expect(out).To(ContainSubstring("delete /old.txt"))
		g.Expect(out).To(ContainSubstring("move /a.txt -> /b.txt"))
		g.Expect(out).To(ContainSubstring("create /c.txt (1 bytes"))

		g.Expect(filepath.Join(root, "a.txt")).To(BeAnExistingFile())
		g.Expect(filepath.Join(root, "old.txt")).To(BeAnExistingFile())
		g.Expect(filepath.Join(root, "b.txt")).NotTo(BeAnExistingFile())
		g.Expect(filepath.Join(root, "c.txt")).NotTo(BeAnExistingFile())
	})

	t.Run("commit writes to disk", func(t *testing.T) {
		g := NewWithT(t)
		root := setupEnv(t, map[string]string{"a.txt": "alpha", "old.txt": "bye"})
		planPath := filepath.Join(t.TempDir(), "plan.yaml")
		writeFiles(t, filepath.Dir(planPath), map[string]string{"plan.yaml": `
ops:
  - op: move
    path: /a.txt
    to: /sub/b.txt
  - op: delete
    path: /old.txt
  - op: create
    path: /new.sh
    content: "#!/bin/sh\n"
    mode: "0755"
`})

		out, err := runCLI(t, "apply", root, planPath, "--commit")
		g.Expect(err).NotTo(HaveOccurred(), out)
		g.Expect(out).To(ContainSubstring("Committed 3 actions"))

		g.Expect(filepath.Join(root, "a.txt")).NotTo(BeAnExistingFile())
		g.Expect(filepath.Join(root, "old.txt")).NotTo(BeAnExistingFile())
		g.Expect(readFile(t, filepath.Join(root, "sub", "b.txt"))).To(Equal("alpha"))

		info, err := os.Stat(filepath.Join(root, "new.sh"))
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o755)))
	})

	t.Run("conflicting overwrites need a strategy", func(t *testing.T) {
		g := NewWithT(t)
		root := setupEnv(t, map[string]string{"f.txt": "base"})
		plans := t.TempDir()
		writeFiles(t, plans, map[string]string{
			"one.yaml": "ops:\n  - op: overwrite\n    path: /f.txt\n    content: one\n",
			"two.yaml": "ops:\n  - op: overwrite\n    path: /f.txt\n    content: second\n",
		})
		one, two := filepath.Join(plans, "one.yaml"), filepath.Join(plans, "two.yaml")

		_, err := runCLI(t, "apply", root, one, two)
		g.Expect(errors.Is(err, common.ErrMergeConflict)).To(BeTrue(), "got %v", err)

		out, err := runCLI(t, "apply", root, one, two, "--strategy", "content-only", "--commit")
		g.Expect(err).NotTo(HaveOccurred(), out)
		g.Expect(out).To(ContainSubstring("overwrite /f.txt (6 bytes"))
		g.Expect(readFile(t, filepath.Join(root, "f.txt"))).To(Equal("second"))
	})

	t.Run("unknown strategy", func(t *testing.T) {
		g := NewWithT(t)
		root := setupEnv(t, nil)
		planPath := filepath.Join(t.TempDir(), "plan.yaml")
		writeFiles(t, filepath.Dir(planPath), map[string]string{"plan.yaml": "ops: []\n"})

		_, err := runCLI(t, "apply", root, planPath, "--strategy", "whatever")
		g.Expect(err).To(MatchError(ContainSubstring("unknown merge strategy")))
	})

	t.Run("missing root", func(t *testing.T) {
		g := NewWithT(t)
		setupEnv(t, nil)
		_, err := runCLI(t, "apply", filepath.Join(t.TempDir(), "nope"), "plan.yaml")
		g.Expect(err).To(MatchError(ContainSubstring("path not found")))
	})
}

func TestChangesetLifecycle(t *testing.T) {
	g := NewWithT(t)
	root := setupEnv(t, map[string]string{"a.txt": "alpha"})
	planPath := filepath.Join(t.TempDir(), "plan.yaml")
	writeFiles(t, filepath.Dir(planPath), map[string]string{"plan.yaml": `
ops:
  - op: move
    path: /a.txt
    to: /b.txt
  - op: create
    path: /notes.md
    content: "# notes\n"
`})

	out, err := runCLI(t, "log")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("No changesets"))

	out, err = runCLI(t, "apply", root, planPath, "--save", "-m", "rename a")
	g.Expect(err).NotTo(HaveOccurred(), out)
	m := savedID.FindStringSubmatch(out)
	g.Expect(m).To(HaveLen(2), out)
	id := m[1]

	out, err = runCLI(t, "log")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring(id[:8]))
	g.Expect(out).To(ContainSubstring("rename a"))

	out, err = runCLI(t, "show", id[:8])
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("Changeset: " + id))
	g.Expect(out).To(ContainSubstring("move /a.txt -> /b.txt"))
	g.Expect(out).To(ContainSubstring("create /notes.md (8 bytes"))

	out, err = runCLI(t, "show", id, "--plan")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("name: rename a"))
	g.Expect(out).To(ContainSubstring("op: move"))

	// Replay onto a second copy of the project and commit it.
	other := t.TempDir()
	writeFiles(t, other, map[string]string{"a.txt": "alpha"})
	out, err = runCLI(t, "replay", id, other, "--commit")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("Committed 2 actions"))
	g.Expect(readFile(t, filepath.Join(other, "b.txt"))).To(Equal("alpha"))
	g.Expect(readFile(t, filepath.Join(other, "notes.md"))).To(Equal("# notes\n"))

	// Replaying again conflicts: the source of the move is gone.
	_, err = runCLI(t, "replay", id, other)
	g.Expect(err).To(HaveOccurred())

	out, err = runCLI(t, "rm", id[:8])
	g.Expect(err).NotTo(HaveOccurred(), out)

	out, err = runCLI(t, "log")
	g.Expect(err).NotTo(HaveOccurred(), out)
	g.Expect(out).To(ContainSubstring("No changesets"))

	_, err = runCLI(t, "show", id)
	g.Expect(err).To(MatchError(ContainSubstring("changeset not found")))
}

func TestLs(t *testing.T) {
	files := map[string]string{
		"main.go":              "package main",
		"debug.log":            "noise",
		".gitignore":           "*.log\n",
		".git/HEAD":            "ref: refs/heads/main",
		".stagefs/config.yaml": "stat-cache-ttl: 0\n",
		"pkg/lib.go":           "package pkg",
	}

	t.Run("honors ignore rules", func(t *testing.T) {
		g := NewWithT(t)
		root := setupEnv(t, files)

		out, err := runCLI(t, "ls", root)
		g.Expect(err).NotTo(HaveOccurred(), out)
		g.Expect(out).To(Equal("/.gitignore\n/main.go\n/pkg/lib.go\n"))
	})

	t.Run("sub directory with modes", func(t *testing.T) {
		g := NewWithT(t)
		root := setupEnv(t, files)

		out, err := runCLI(t, "ls", root, "/pkg", "-l")
		g.Expect(err).NotTo(HaveOccurred(), out)
		g.Expect(out).To(Equal("0644       11 /pkg/lib.go\n"))
	})

	t.Run("file is not a directory", func(t *testing.T) {
		g := NewWithT(t)
		root := setupEnv(t, files)

		_, err := runCLI(t, "ls", root, "/main.go")
		g.Expect(errors.Is(err, common.ErrPathIsFile)).To(BeTrue(), "got %v", err)
	})
}

func TestSetupLogging(t *testing.T) {
	g := NewWithT(t)
	var buf bytes.Buffer
	g.Expect(setupLogging("DEBUG", &buf)).To(Succeed())
	g.Expect(setupLogging("none", &buf)).To(Succeed())
	g.Expect(setupLogging("loud", &buf)).To(MatchError(ContainSubstring("unknown log level")))
}

func TestVersionString(t *testing.T) {
	g := NewWithT(t)
	SetVersion("1.2.3", "abc", "0")
	g.Expect(rootCmd.Version).To(Equal("1.2.3 (" + formatBuildDate("0") + ")"))
	g.Expect(formatBuildDate("not-a-number")).To(Equal("not-a-number"))
}
