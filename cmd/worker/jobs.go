package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aiakap/travel-planner-v1/internal/domain"
)

var (
	jobsStatus     string
	jobsEntityType string
	jobsLimit      int
	jobsJSON       bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent image jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := domain.JobFilter{Limit: jobsLimit}
		if jobsStatus != "" {
			s, err := domain.ParseJobStatus(jobsStatus)
			if err != nil {
				return err
			}
			filter.Status = s
		}
		if jobsEntityType != "" {
			k, err := domain.ParseEntityType(jobsEntityType)
			if err != nil {
				return err
			}
			filter.EntityType = k
		}

		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		jobs, err := e.queue.List(ctx, filter)
		if err != nil {
			return err
		}
		if jobsJSON {
			return printJSON(cmd.OutOrStdout(), jobs)
		}
		return printJobs(cmd.OutOrStdout(), jobs)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count image jobs per status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		counts, err := e.queue.Stats(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), counts)
	},
}

func init() {
	jobsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (pending, in_progress, completed, failed)")
	jobsCmd.Flags().StringVar(&jobsEntityType, "entity-type", "", "Filter by entity type (trip, segment, reservation)")
	jobsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum jobs to list")
	jobsCmd.Flags().BoolVar(&jobsJSON, "json", false, "Print JSON instead of a table")
}

func printJobs(out io.Writer, jobs []domain.ImageJob) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tENTITY\tSTATUS\tATTEMPTS\tUPDATED\tNOTES")
	for _, j := range jobs {
		notes := ""
		if j.Notes != nil {
			notes = strings.ReplaceAll(*j.Notes, "\n", " | ")
			if len(notes) > 80 {
				notes = notes[:77] + "..."
			}
		}
		fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%d\t%s\t%s\n",
			j.ID, j.EntityType, j.EntityID, j.Status, j.Attempts, j.UpdatedAt.Format(time.RFC3339), notes)
	}
	return tw.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
