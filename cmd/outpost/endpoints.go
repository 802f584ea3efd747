package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/outpost-run/outpost-go/pkg/outpost"
	"github.com/spf13/cobra"
)

var (
	endpointsCmd = &cobra.Command{
		Use:     "endpoints",
		Aliases: []string{"endpoint", "ep"},
		Short:   "Manage inference endpoints",
	}

	endpointsListCmd = &cobra.Command{
		Use:   "list ENTITY",
		Short: "List the endpoints of a user or team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newAPIClient(cmd)
			if err != nil {
				return err
			}

			l, err := outpost.NewEndpoints(c, args[0]).List(cmd.Context())
			if err != nil {
				return err
			}
			if ojson {
				return writeJSON(cmd.OutOrStdout(), l)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range l.Endpoints {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.FullName, e.Status, e.TaskType)
			}
			return tw.Flush()
		},
	}

	endpointsGetCmd = &cobra.Command{
		Use:   "get ENTITY/NAME",
		Short: "Show an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, name, ok := strings.Cut(args[0], "/")
			if !ok || entity == "" || name == "" {
				return fmt.Errorf("invalid endpoint %q: want ENTITY/NAME", args[0])
			}

			c, err := newAPIClient(cmd)
			if err != nil {
				return err
			}

			e, err := outpost.NewEndpoint(c, entity, name).Get(cmd.Context())
			if err != nil {
				return err
			}
			if ojson {
				return writeJSON(cmd.OutOrStdout(), e)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name: %s\n", e.FullName)
			fmt.Fprintf(out, "Status: %s\n", e.Status)
			fmt.Fprintf(out, "Task: %s\n", e.TaskType)
			if e.PrimaryDomain != nil {
				fmt.Fprintf(out, "URL: %s%s\n", e.PrimaryDomain.URL(), e.PredictionPath)
			}
			return nil
		},
	}
)

func init() {
	endpointsCmd.AddCommand(
		endpointsListCmd,
		endpointsGetCmd,
	)
}
