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
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kudos/praisebridge/internal/config"
	"github.com/kudos/praisebridge/internal/route"
	"github.com/kudos/praisebridge/internal/slackapi"
)

func newChannelsCmd() *cobra.Command {
	var token, apiURL, routes string

	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List Slack channels and their configured card destinations",
		Long: "Lists the public and private channels visible to the bot with their IDs.\n" +
			"Use it to fill in the channel route map.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = envDefault("SLACK_BOT_TOKEN")
			}
			if token == "" {
				return errors.New("missing Slack bot token (--token or SLACK_BOT_TOKEN)")
			}
			if routes == "" {
				routes = envDefault("CHANNEL_ROUTES")
			}
			var routeMap route.ChannelRouteMap
			if routes != "" {
				parsed, err := config.ParseRoutes(routes)
				if err != nil {
					return err
				}
				routeMap = parsed
			}

			client := slackapi.NewClient(slackapi.Options{Token: token, APIURL: apiURL})
			channels, err := client.ListChannels(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })

			out := cmd.OutOrStdout()
			for _, ch := range channels {
				visibility := "public"
				if ch.IsPrivate {
					visibility = "private"
				}
				fmt.Fprintf(out, "%-12s  %-7s  #%s%s\n",
					ch.ID, visibility, color.CyanString(ch.Name), describeRoutes(routeMap[ch.Name]))
			}
			fmt.Fprintf(out, "%d channel(s)\n", len(channels))
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "Slack bot token (default $SLACK_BOT_TOKEN)")
	cmd.Flags().StringVar(&apiURL, "api-url", "", "Slack Web API base URL")
	cmd.Flags().StringVar(&routes, "routes", "", "Channel route map as YAML/JSON (default $CHANNEL_ROUTES)")
	return cmd
}

// describeRoutes renders a channel's destinations, e.g. "  -> announcement=abc issues=def".
func describeRoutes(dest route.Destinations) string {
	if len(dest) == 0 {
		return ""
	}
	keys := make([]string, 0, len(dest))
	for k := range dest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+dest[k])
	}
	return "  " + color.GreenString("-> "+strings.Join(parts, " "))
}
