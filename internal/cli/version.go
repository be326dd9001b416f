// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := VersionData{
				Version:   a.info.Version,
				GitCommit: a.info.GitCommit,
				BuildDate: a.info.BuildDate,
				GoVersion: runtime.Version(),
			}
			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return NewJSONResponse("version", data).Print(out)
			}
			fmt.Fprintf(out, "%s %s\n", RenderConditional(TitleStyle, "difychat"), data.Version)
			fmt.Fprintf(out, "%s%s\n", RenderLabel("commit"), data.GitCommit)
			fmt.Fprintf(out, "%s%s\n", RenderLabel("built"), data.BuildDate)
			fmt.Fprintf(out, "%s%s\n", RenderLabel("go"), data.GoVersion)
			return nil
		},
	}
}
