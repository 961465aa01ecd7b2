// Copyright (c) 2026 John Earle
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

// Package cli implements bridgectl, the operator tool for the praise bridge.
package cli

import (
	"errors"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version can be overridden at build time via -ldflags "-X ...cli.version=x".
var version = "0.1.0"

// NewRootCmd builds the bridgectl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bridgectl",
		Short:         "Operator tool for the praise bridge",
		Long:          color.CyanString("bridgectl") + " inspects Slack channels, core values and request signatures for the praise bridge.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	root.AddCommand(newChannelsCmd())
	root.AddCommand(newCoreValuesCmd())
	root.AddCommand(newSignCmd())
	return root
}

// Execute runs bridgectl.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

// envDefault returns the value of key, or "" when unset.
func envDefault(key string) string {
	return os.Getenv(key)
}
