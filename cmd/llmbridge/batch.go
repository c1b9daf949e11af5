package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lizzyg/llmbridge"
	"github.com/lizzyg/llmbridge/internal/providers/gemini"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Manage Gemini chat batch jobs",
}

var batchCreateCmd = &cobra.Command{
	Use:   "create prompt...",
	Short: "Submit one chat request per prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  batchCreateRun,
}

var batchGetCmd = &cobra.Command{
	Use:   "get name",
	Short: "Show a batch job and its results",
	Args:  cobra.ExactArgs(1),
	RunE:  batchGetRun,
}

var batchWaitCmd = &cobra.Command{
	Use:   "wait name",
	Short: "Poll a batch job until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE:  batchWaitRun,
}

var batchCancelCmd = &cobra.Command{
	Use:   "cancel name",
	Short: "Cancel a batch job",
	Args:  cobra.ExactArgs(1),
	RunE: batchNameRun(func(cmd *cobra.Command, b *gemini.BatchChat, name llmbridge.BatchName) error {
		return b.CancelBatchJob(cmd.Context(), name)
	}),
}

var batchDeleteCmd = &cobra.Command{
	Use:   "delete name",
	Short: "Delete a batch job",
	Args:  cobra.ExactArgs(1),
	RunE: batchNameRun(func(cmd *cobra.Command, b *gemini.BatchChat, name llmbridge.BatchName) error {
		return b.DeleteBatchJob(cmd.Context(), name)
	}),
}

var batchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List batch jobs",
	RunE:  batchListRun,
}

var (
	batchDisplayNameFlag string
	batchPriorityFlag    int64
	batchFileFlag        string
	batchIntervalFlag    time.Duration
	pageSizeFlag         int
	pageTokenFlag        string
)

func init() {
	rootCmd.AddCommand(batchCmd)
	batchCmd.AddCommand(batchCreateCmd, batchGetCmd, batchWaitCmd, batchCancelCmd, batchDeleteCmd, batchListCmd)
	batchCreateCmd.Flags().StringVar(&batchDisplayNameFlag, "display-name", "llmbridge-batch", "batch display name")
	batchCreateCmd.Flags().Int64Var(&batchPriorityFlag, "priority", 0, "batch priority")
	batchCreateCmd.Flags().StringVar(&batchFileFlag, "file", "", "use an uploaded JSONL file (files/...) instead of prompts")
	batchWaitCmd.Flags().DurationVar(&batchIntervalFlag, "interval", gemini.DefaultPollInterval, "poll interval")
	batchListCmd.Flags().IntVar(&pageSizeFlag, "page-size", 20, "page size")
	batchListCmd.Flags().StringVar(&pageTokenFlag, "page-token", "", "page token")
}

func batchCreateRun(cmd *cobra.Command, args []string) error {
	b, err := bridge.BatchChatModel(modelKey())
	if err != nil {
		return err
	}
	var priority *int64
	if cmd.Flags().Changed("priority") {
		priority = &batchPriorityFlag
	}
	var resp llmbridge.BatchResponse[llmbridge.ChatResponse]
	if batchFileFlag != "" {
		resp, err = b.CreateBatchFromFile(cmd.Context(), batchDisplayNameFlag, priority, batchFileFlag)
	} else {
		reqs := make([]llmbridge.ChatRequest, len(args))
		for i, p := range args {
			reqs[i] = llmbridge.ChatRequest{Messages: []llmbridge.ChatMessage{llmbridge.UserMessage(p)}}
		}
		resp, err = b.CreateBatch(cmd.Context(), batchDisplayNameFlag, priority, reqs)
	}
	if err != nil {
		return err
	}
	printBatch(cmd.OutOrStdout(), resp)
	return nil
}

func batchNameRun(fn func(*cobra.Command, *gemini.BatchChat, llmbridge.BatchName) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		name, err := llmbridge.NewBatchName(args[0])
		if err != nil {
			return err
		}
		b, err := bridge.BatchChatModel(modelKey())
		if err != nil {
			return err
		}
		if err := fn(cmd, b, name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", cmd.Name(), name)
		return nil
	}
}

func batchGetRun(cmd *cobra.Command, args []string) error {
	return batchNameRun(func(cmd *cobra.Command, b *gemini.BatchChat, name llmbridge.BatchName) error {
		resp, err := b.RetrieveBatchResults(cmd.Context(), name)
		if err != nil {
			return err
		}
		printBatch(cmd.OutOrStdout(), resp)
		return nil
	})(cmd, args)
}

func batchWaitRun(cmd *cobra.Command, args []string) error {
	return batchNameRun(func(cmd *cobra.Command, b *gemini.BatchChat, name llmbridge.BatchName) error {
		resp, err := b.Wait(cmd.Context(), name, batchIntervalFlag)
		if err != nil {
			return err
		}
		printBatch(cmd.OutOrStdout(), resp)
		return nil
	})(cmd, args)
}

func batchListRun(cmd *cobra.Command, args []string) error {
	b, err := bridge.BatchChatModel(modelKey())
	if err != nil {
		return err
	}
	list, err := b.ListBatchJobs(cmd.Context(), pageSizeFlag, pageTokenFlag)
	if err != nil {
		return err
	}
	for _, r := range list.Responses {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.BatchName(), r.BatchState())
	}
	if list.NextPageToken != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "next page token: %s\n", list.NextPageToken)
	}
	return nil
}

func printBatch(w io.Writer, resp llmbridge.BatchResponse[llmbridge.ChatResponse]) {
	fmt.Fprintf(w, "%s\t%s\n", resp.BatchName(), resp.BatchState())
	switch r := resp.(type) {
	case *llmbridge.BatchSuccess[llmbridge.ChatResponse]:
		for i, cr := range r.Responses {
			fmt.Fprintf(w, "[%d] %s\n", i, cr.Text())
		}
		for _, e := range r.Errors {
			fmt.Fprintf(w, "[%d] error %d: %s\n", e.Index, e.Code, e.Message)
		}
	case *llmbridge.BatchError[llmbridge.ChatResponse]:
		fmt.Fprintf(w, "error %d: %s\n", r.Code, r.Message)
	}
}
