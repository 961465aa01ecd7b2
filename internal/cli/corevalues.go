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

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/kudos/praisebridge/internal/ledger"
)

// valueLister is the part of the ledger core-values needs.
type valueLister interface {
	ListCoreValues(ctx context.Context) ([]ledger.CoreValue, error)
}

func newCoreValuesCmd() *cobra.Command {
	var databaseURL string

	cmd := &cobra.Command{
		Use:   "core-values",
		Short: "Print the core values and the #tokens users type for them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				databaseURL = envDefault("DATABASE_URL")
			}
			if databaseURL == "" {
				return errors.New("missing database URL (--database-url or DATABASE_URL)")
			}

			pool, err := pgxpool.New(cmd.Context(), databaseURL)
			if err != nil {
				return fmt.Errorf("create Postgres pool: %w", err)
			}
			defer pool.Close()

			return printCoreValues(cmd, ledger.OpenStore(pool))
		},
	}

	cmd.Flags().StringVar(&databaseURL, "database-url", "", "Postgres URL (default $DATABASE_URL)")
	return cmd
}

func printCoreValues(cmd *cobra.Command, lister valueLister) error {
	values, err := lister.ListCoreValues(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(values) == 0 {
		fmt.Fprintln(out, color.YellowString("no core values defined"))
		return nil
	}
	for _, v := range values {
		fmt.Fprintf(out, "%-24s %s", color.CyanString(v.Token()), v.Name)
		if v.Description != "" {
			fmt.Fprintf(out, " - %s", v.Description)
		}
		fmt.Fprintln(out)
	}
	return nil
}
