// Command matchcsv runs the ingestion pipeline from the terminal: parse a
// results file, diff it against the reference index, fetch features and
// optionally commit the staged batch.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"matchstage/internal/augment"
	"matchstage/internal/config"
	"matchstage/internal/services"
	"matchstage/internal/stage"
	"matchstage/internal/statsapi"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "matchcsv",
		Short:         "Stage league match results against the stats service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(leaguesCmd())
	rootCmd.AddCommand(teamsCmd())
	rootCmd.AddCommand(ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

// newPipeline builds a CLI-scoped pipeline with quiet logging.
func newPipeline() (*services.PipelineService, *stage.Session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	client := statsapi.NewClient(statsapi.Options{
		BaseURL: cfg.StatsAPI.BaseURL,
		Timeout: cfg.StatsAPI.Timeout,
		RPS:     cfg.StatsAPI.RPS,
		Burst:   cfg.StatsAPI.Burst,
	}, logger)

	orchestrator := augment.NewOrchestrator(client, augment.NopNotifier{}, augment.Options{
		Concurrency:  cfg.Augment.Concurrency,
		BatchTimeout: cfg.Augment.BatchTimeout,
	}, logger)

	pipeline := services.NewPipelineService(client, orchestrator, nil, nil, logger)
	session := stage.NewSession(client, logger)
	return pipeline, session, nil
}

func leaguesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leagues",
		Short: "List leagues known to the stats service",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, _, err := newPipeline()
			if err != nil {
				return err
			}
			leagues, err := pipeline.Leagues(cmd.Context())
			if err != nil {
				return err
			}
			for _, l := range leagues {
				fmt.Println(l)
			}
			return nil
		},
	}
}

func teamsCmd() *cobra.Command {
	var league string
	cmd := &cobra.Command{
		Use:   "teams",
		Short: "List the reference index teams for a league",
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, _, err := newPipeline()
			if err != nil {
				return err
			}
			index, err := pipeline.Teams(cmd.Context(), league)
			if err != nil {
				return err
			}
			for _, t := range index.Teams {
				fmt.Println(t)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&league, "league", "l", "", "league identifier (required)")
	cmd.MarkFlagRequired("league")
	return cmd
}

func ingestCmd() *cobra.Command {
	var (
		league     string
		commit     bool
		credential string
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Parse, classify and augment a results file; optionally commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pipeline, session, err := newPipeline()
			if err != nil {
				return err
			}

			upload, err := readUpload(args[0])
			if err != nil {
				return err
			}

			result, err := pipeline.Ingest(cmd.Context(), session, league, upload)
			var partial *augment.PartialError
			if err != nil && !errors.As(err, &partial) {
				return err
			}

			printResult(result)
			if partial != nil {
				fmt.Fprintln(os.Stderr, color.YellowString(
					"warning: feature requests failed for %d of %d rows", len(partial.FailedRows), partial.Total))
			}

			if !commit {
				return nil
			}
			if err := pipeline.Commit(cmd.Context(), session, credential); err != nil {
				return commitError(err)
			}
			fmt.Println(color.GreenString("committed %d new matches to %s", result.NewCount, league))
			return nil
		},
	}
	cmd.Flags().StringVarP(&league, "league", "l", "", "league identifier (required)")
	cmd.Flags().BoolVar(&commit, "commit", false, "commit the staged batch after augmentation")
	cmd.Flags().StringVar(&credential, "credential", "", "credential for the commit gate")
	cmd.MarkFlagRequired("league")
	return cmd
}

func readUpload(path string) (services.Upload, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		f, err := os.Open(path)
		if err != nil {
			return services.Upload{}, err
		}
		return services.Upload{Workbook: f}, nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return services.Upload{}, err
		}
		return services.Upload{Text: string(data)}, nil
	}
}

func printResult(result *services.IngestResult) {
	if result.NewCount == 0 {
		fmt.Println(color.YellowString("no new matches found"))
		return
	}

	header := color.New(color.FgCyan, color.Bold)
	fmt.Println(header.Sprint(strings.Join(result.Columns, "\t")))
	failed := make(map[int]bool, len(result.FailedRows))
	for _, i := range result.FailedRows {
		failed[i] = true
	}
	for i, row := range result.Rows {
		line := strings.Join(row, "\t")
		if failed[i] {
			fmt.Println(color.YellowString(line))
			continue
		}
		fmt.Println(line)
	}
	fmt.Printf("\n%s\n", color.GreenString("%d new matches staged (batch %s)", result.NewCount, result.BatchID))
}

func commitError(err error) error {
	switch {
	case errors.Is(err, stage.ErrCredentialRequired):
		return fmt.Errorf("commit requires --credential; the staged batch was kept")
	case errors.Is(err, stage.ErrBatchIncomplete):
		return fmt.Errorf("no rows were augmented; refusing to commit")
	default:
		var rejected *stage.CommitRejectedError
		if errors.As(err, &rejected) {
			return fmt.Errorf("commit rejected: %s (batch kept for retry)", rejected.Reason)
		}
		return err
	}
}
