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
	"io"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"stagefs/internal/config"
	"stagefs/internal/storage"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// logLevel is the --log-level persistent flag; empty defers to settings.
var logLevel string

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "stagefs",
	Short: "Stage file tree changes before they touch the disk",
	Long: `Stage file creations, overwrites, moves and deletes over a directory without
modifying it. Staged changes can be branched, merged under a conflict strategy,
saved as changesets, and committed to disk in one pass.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip initialization for help commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		if err := config.InitConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		level := logLevel
		if settings, err := config.LoadGlobalSettings(); err == nil {
			storage.SetConfigBusyTimeout(settings.BusyTimeout)
			if level == "" {
				level = settings.LogLevel
			}
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not load settings: %v\n", err)
		}
		return setupLogging(level, cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("stagefs version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, none")
}

// setupLogging points logrus at w with the given level (case insensitive).
// "none" or an empty level discards all output.
func setupLogging(level string, w io.Writer) error {
	level = strings.ToLower(level)
	switch level {
	case "", "none", "off":
		log.SetOutput(io.Discard)
		return nil
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	log.SetOutput(w)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
