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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/kudos/praisebridge/internal/signature"
)

func newSignCmd() *cobra.Command {
	var secret, bodyFile string
	var timestamp int64

	cmd := &cobra.Command{
		Use:   "sign [body]",
		Short: "Print Slack signature headers for a request body",
		Long: "Signs a request body the way Slack does so the bridge endpoints can be\n" +
			"exercised locally with curl. The body comes from the argument, --body-file,\n" +
			"or stdin.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = envDefault("SLACK_SIGNING_SECRET")
			}
			if secret == "" {
				return errors.New("missing signing secret (--secret or SLACK_SIGNING_SECRET)")
			}

			body, err := readBody(cmd, args, bodyFile)
			if err != nil {
				return err
			}
			if timestamp == 0 {
				timestamp = time.Now().Unix()
			}
			ts := strconv.FormatInt(timestamp, 10)
			sig := signature.NewVerifier(secret).Sign(ts, body)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", signature.HeaderTimestamp, ts)
			fmt.Fprintf(out, "%s: %s\n", signature.HeaderSignature, sig)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default $SLACK_SIGNING_SECRET)")
	cmd.Flags().StringVar(&bodyFile, "body-file", "", "Read the body from a file")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Unix timestamp to sign with (default now)")
	return cmd
}

func readBody(cmd *cobra.Command, args []string, bodyFile string) ([]byte, error) {
	switch {
	case len(args) == 1:
		return []byte(args[0]), nil
	case bodyFile != "":
		b, err := os.ReadFile(bodyFile)
		if err != nil {
			return nil, fmt.Errorf("read body file: %w", err)
		}
		return b, nil
	default:
		return io.ReadAll(cmd.InOrStdin())
	}
}
