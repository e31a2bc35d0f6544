package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/app"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/queue"
)

var failuresFlags struct {
	Max        int
	Visibility time.Duration
}

type failureView struct {
	MessageID     string    `json:"message_id"`
	DeliveryCount int       `json:"delivery_count"`
	RequestID     string    `json:"request_id"`
	Date          string    `json:"date"`
	ErrorType     string    `json:"error_type"`
	ErrorMessage  string    `json:"error_message"`
	Timestamp     time.Time `json:"timestamp"`
}

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect the failure queue",
}

var failuresPeekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Show failed outcomes without acknowledging them",
	Long: `peek receives up to --max items from the failure queue and prints them.
Nothing is acknowledged: the items become visible again once the short
--visibility window passes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if failuresFlags.Max < 1 || failuresFlags.Max > queue.MaxBatch {
			return fmt.Errorf("--max must be between 1 and %d", queue.MaxBatch)
		}
		cfg, err := loadConfig(map[string]string{
			"VISIBILITY_TIMEOUT": failuresFlags.Visibility.String(),
		})
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		deps, err := app.NewDeps(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer func() { _ = deps.Close() }()

		q, err := deps.FailureQueue(cmd.Context())
		if err != nil {
			return err
		}
		items, err := q.ReceiveBatch(cmd.Context(), failuresFlags.Max)
		if err != nil {
			return err
		}

		out := make([]failureView, 0, len(items))
		for _, it := range items {
			out = append(out, viewOf(it))
		}
		return printJSON(cmd, out)
	},
}

func viewOf(it queue.Item) failureView {
	v := failureView{MessageID: it.MessageID, DeliveryCount: it.DeliveryCount}
	o, err := it.Decode()
	if err != nil {
		v.ErrorType, v.ErrorMessage = "Undecodable", err.Error()
		return v
	}
	v.RequestID, v.Date, v.Timestamp = o.RequestContext.RequestID, o.RequestPayload.Date, o.Timestamp
	if d, ok := o.Error(); ok {
		v.ErrorType, v.ErrorMessage = d.ErrorType, d.ErrorMessage
	} else {
		v.ErrorType = pipeline.ConditionSuccess
	}
	return v
}

func init() {
	failuresPeekCmd.Flags().IntVar(&failuresFlags.Max, "max", queue.MaxBatch, "maximum items to show")
	failuresPeekCmd.Flags().DurationVar(&failuresFlags.Visibility, "visibility", time.Second, "how long peeked items stay hidden")
	failuresCmd.AddCommand(failuresPeekCmd)
	rootCmd.AddCommand(failuresCmd)
}
