package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbrown/claude-recall/internal/lessons"
	"github.com/pbrown/claude-recall/internal/scoring"
)

func newScoreRelevanceCmd(app *App) *cobra.Command {
	var topN, minScore, timeoutSecs int
	cmd := &cobra.Command{
		Use:   "score-relevance <text>",
		Short: "Score lessons by relevance to text via the external model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := app.Lessons.List(lessons.ListOptions{Scope: "all"})
			if err != nil {
				return err
			}
			timeout := time.Duration(timeoutSecs) * time.Second
			if timeoutSecs <= 0 {
				timeout = time.Duration(app.Config.Scorer.TimeoutSeconds) * time.Second
			}
			scorer := scoring.New(app.Config.Scorer.Command, timeout, app.Config.Scorer.MaxQueryLen, app.Log)
			result := scorer.Score(args[0], all)
			fmt.Println(scoring.Format(result, topN, minScore))
			return nil
		},
	}
	cmd.Flags().IntVar(&topN, "top", 10, "number of top results to show")
	cmd.Flags().IntVar(&minScore, "min-score", 0, "minimum relevance score (0-10)")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "timeout in seconds for the model call")
	return cmd
}
