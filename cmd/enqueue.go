package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/headline-scraper/internal/scrape"
	"github.com/JakeFAU/headline-scraper/internal/urlfilter"
)

func newEnqueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Adds a job to the queue and prints its id",
	}
	cmd.AddCommand(newEnqueueArticleCmd())
	cmd.AddCommand(newEnqueueSourceCmd())
	cmd.AddCommand(newEnqueueBatchCmd())
	return cmd
}

func newEnqueueArticleCmd() *cobra.Command {
	var sourceID int64
	cmd := &cobra.Command{
		Use:   "article <url>",
		Short: "Queues one article URL for extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := urlfilter.Canonicalize(args[0]); err != nil {
				return err
			}
			payload := scrape.ArticlePayload{URL: args[0]}
			if sourceID > 0 {
				payload.SourceID = &sourceID
			}
			return enqueue(cmd, scrape.JobTypeArticle, payload)
		},
	}
	cmd.Flags().Int64Var(&sourceID, "source-id", 0, "source the article was found on")
	return cmd
}

func newEnqueueSourceCmd() *cobra.Command {
	var (
		limit int
		url   string
		query string
	)
	cmd := &cobra.Command{
		Use:   "source <source-id>",
		Short: "Queues a link harvest for one news source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid source id %q", args[0])
			}
			if limit < 0 {
				return fmt.Errorf("limit must be > 0")
			}
			return enqueue(cmd, scrape.JobTypeSource, scrape.SourcePayload{
				SourceID: id,
				URL:      url,
				Query:    query,
				Limit:    limit,
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum links to queue (default from worker.source_limit)")
	cmd.Flags().StringVar(&url, "url", "", "page to harvest instead of the source's homepage")
	cmd.Flags().StringVar(&query, "query", "", "search URL to harvest instead of the homepage")
	return cmd
}

func newEnqueueBatchCmd() *cobra.Command {
	var payload scrape.BatchPayload
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Queues a batch job that fans out to due sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if payload.BatchSize < 0 {
				return fmt.Errorf("batch size must be > 0")
			}
			return enqueue(cmd, scrape.JobTypeBatch, payload)
		},
	}
	cmd.Flags().IntVar(&payload.BatchSize, "size", 0, "sources to claim (default 50)")
	cmd.Flags().StringVar(&payload.Query, "query", "", "only sources whose name or url contains this text")
	cmd.Flags().BoolVar(&payload.DryRun, "dry-run", false, "log the selected sources without queueing them")
	return cmd
}

func enqueue(cmd *cobra.Command, jobType scrape.JobType, payload any) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	body, err := scrape.MarshalPayload(payload)
	if err != nil {
		return err
	}
	id, err := appInstance.Queue().Enqueue(cmd.Context(), jobType, body)
	if err != nil {
		return fmt.Errorf("enqueue %s job: %w", jobType, err)
	}
	appInstance.Logger().Info("job enqueued", zap.Int64("job_id", id), zap.String("job_type", string(jobType)))
	_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
	return err
}
