package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"needledrop/internal/jobqueue"
	"needledrop/internal/jobstatus"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the acquisition queues",
	}
	cmd.AddCommand(newJobsListCommand(ctx))
	cmd.AddCommand(newJobsShowCommand(ctx))
	cmd.AddCommand(newJobsClearCommand(ctx))
	return cmd
}

func newJobsListCommand(ctx *commandContext) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs on a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			listing, err := client.listJobs(queue)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "waiting %d  delayed %d  active %d  completed %d  failed %d\n",
				listing.Counts.Waiting, listing.Counts.Delayed, listing.Counts.Active,
				listing.Counts.Completed, listing.Counts.Failed)
			if len(listing.Jobs) == 0 {
				fmt.Fprintln(out, "No jobs.")
				return nil
			}

			rows := make([][]string, 0, len(listing.Jobs))
			for _, job := range listing.Jobs {
				rows = append(rows, []string{
					job.ID,
					job.State,
					priorityLabel(job.Priority),
					strconv.Itoa(job.Progress),
					fmt.Sprintf("%d/%d", job.AttemptsMade, job.MaxAttempts),
					formatUnixMillis(job.CreatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "State", "Priority", "Progress", "Attempts", "Created"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "download", "Queue to list (download or analyze)")
	return cmd
}

func newJobsShowCommand(ctx *commandContext) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			job, err := client.getJob(queue, args[0])
			if err != nil {
				return err
			}

			rows := [][]string{
				{"ID", job.ID},
				{"Name", job.Name},
				{"State", job.State},
				{"Priority", priorityLabel(job.Priority)},
				{"Progress", strconv.Itoa(job.Progress)},
				{"Attempts", fmt.Sprintf("%d/%d", job.AttemptsMade, job.MaxAttempts)},
				{"Created", formatUnixMillis(job.CreatedAt)},
				{"Started", formatUnixMillis(job.ProcessedOn)},
				{"Finished", formatUnixMillis(job.FinishedOn)},
			}
			if job.FailedReason != "" {
				rows = append(rows, []string{"Failure", job.FailedReason})
			}
			if len(job.ReturnValue) > 0 {
				rows = append(rows, []string{"Result", string(job.ReturnValue)})
			}
			rows = append(rows, []string{"Payload", string(job.Data)})

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "download", "Queue the job lives on")
	return cmd
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	var queue string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every job from a queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.clearQueue(queue); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared queue %s\n", queue)
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "download", "Queue to clear")
	return cmd
}

func newWorkerCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Inspect jobs handed to the downloader worker",
	}
	cmd.AddCommand(newWorkerJobsCommand(ctx))
	cmd.AddCommand(newWorkerSummaryCommand(ctx))
	return cmd
}

func newWorkerJobsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List worker job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			records, err := client.listWorkerJobs(limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No worker jobs.")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.JobID,
					rec.Status,
					strconv.Itoa(rec.Progress),
					rec.TrackID,
					strconv.Itoa(rec.FriendID),
					workerResultLabel(rec),
					formatUnixMillis(rec.UpdatedAt),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Status", "Progress", "Track", "Friend", "Result", "Updated"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to list")
	return cmd
}

func newWorkerSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show worker job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			summary, err := client.workerSummary()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Status", "Count"},
				[][]string{
					{"queued", strconv.Itoa(summary.Queued)},
					{"processing", strconv.Itoa(summary.Processing)},
					{"completed", strconv.Itoa(summary.Completed)},
					{"failed", strconv.Itoa(summary.Failed)},
					{"total", strconv.Itoa(summary.Total)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}

func workerResultLabel(rec jobstatus.Record) string {
	if rec.Error != "" {
		return rec.Error
	}
	if rec.Result != nil {
		if rec.Result.FileURL != "" {
			return rec.Result.FileURL
		}
		return rec.Result.FilePath
	}
	return ""
}

func priorityLabel(priority int) string {
	switch priority {
	case jobqueue.PriorityHigh:
		return "high"
	case jobqueue.PriorityLow:
		return "low"
	default:
		return "normal"
	}
}

func formatUnixMillis(millis int64) string {
	if millis == 0 {
		return ""
	}
	return time.UnixMilli(millis).Local().Format("2006-01-02 15:04:05")
}
