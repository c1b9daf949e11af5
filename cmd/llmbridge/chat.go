package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lizzyg/llmbridge"
)

var chatCmd = &cobra.Command{
	Use:   "chat [prompt...]",
	Short: "Send one prompt and print the answer",
	RunE:  chatRun,
}

var streamCmd = &cobra.Command{
	Use:   "stream [prompt...]",
	Short: "Stream the answer to one prompt",
	RunE:  streamRun,
}

var tokensCmd = &cobra.Command{
	Use:   "tokens [prompt...]",
	Short: "Count the tokens of a prompt",
	RunE:  tokensRun,
}

var (
	systemFlag   string
	jsonFlag     bool
	thinkingFlag bool
)

func init() {
	rootCmd.AddCommand(chatCmd, streamCmd, tokensCmd)
	for _, c := range []*cobra.Command{chatCmd, streamCmd, tokensCmd} {
		c.Flags().StringVarP(&systemFlag, "system", "s", "", "system instruction")
	}
	chatCmd.Flags().BoolVar(&jsonFlag, "json", false, "ask for a JSON answer")
	streamCmd.Flags().BoolVar(&thinkingFlag, "thinking", false, "print thinking as it arrives")
}

func chatMessages(cmd *cobra.Command, args []string) ([]llmbridge.ChatMessage, error) {
	prompt, err := promptArg(cmd, args)
	if err != nil {
		return nil, err
	}
	var msgs []llmbridge.ChatMessage
	if systemFlag != "" {
		msgs = append(msgs, llmbridge.SystemMessage(systemFlag))
	}
	return append(msgs, llmbridge.UserMessage(prompt)), nil
}

func chatRun(cmd *cobra.Command, args []string) error {
	msgs, err := chatMessages(cmd, args)
	if err != nil {
		return err
	}
	cm, err := bridge.ChatModel(modelKey())
	if err != nil {
		return err
	}
	req := llmbridge.ChatRequest{Messages: msgs}
	if jsonFlag {
		req.ResponseFormat = &llmbridge.JSONFormat
	}
	resp, err := cm.Chat(cmd.Context(), req)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), resp.Text())
	return nil
}

func streamRun(cmd *cobra.Command, args []string) error {
	msgs, err := chatMessages(cmd, args)
	if err != nil {
		return err
	}
	sm, err := bridge.StreamingChatModel(modelKey())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	h := llmbridge.StreamingHandler{
		OnPartialResponse: func(text string) { fmt.Fprint(out, text) },
	}
	if thinkingFlag {
		h.OnPartialThinking = func(text string) { fmt.Fprint(cmd.ErrOrStderr(), text) }
	}
	if _, err := sm.ChatStream(cmd.Context(), llmbridge.ChatRequest{Messages: msgs}, h); err != nil {
		return err
	}
	fmt.Fprintln(out)
	return nil
}

func tokensRun(cmd *cobra.Command, args []string) error {
	msgs, err := chatMessages(cmd, args)
	if err != nil {
		return err
	}
	tc, err := bridge.TokenCounter(modelKey())
	if err != nil {
		return err
	}
	n, err := tc.CountTokens(cmd.Context(), msgs)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), n)
	return nil
}
