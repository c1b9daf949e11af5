package main

import (
	"bufio"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/spf13/cobra"

	"github.com/lizzyg/llmbridge"
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Chat over a Gemini live session, one turn per stdin line",
	RunE:  liveRun,
}

func init() {
	rootCmd.AddCommand(liveCmd)
	liveCmd.Flags().StringVarP(&systemFlag, "system", "s", "", "system instruction")
}

func liveRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	turnDone := make(chan struct{}, 1)
	failed := make(chan error, 1)
	var audioBytes atomic.Int64

	session, err := bridge.Live(ctx, modelKey(), systemFlag, llmbridge.LiveHandlers{
		OnText:  func(text string) { fmt.Fprint(out, text) },
		OnAudio: func(pcm []byte) { audioBytes.Add(int64(len(pcm))) },
		OnTurnComplete: func() {
			select {
			case turnDone <- struct{}{}:
			default:
			}
		},
		OnError: func(err error) {
			select {
			case failed <- err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer session.Close()
	fmt.Fprintf(cmd.ErrOrStderr(), "live session %s ready\n", session.ID())

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := session.SendText(line); err != nil {
			return err
		}
		select {
		case <-turnDone:
			fmt.Fprintln(out)
			if n := audioBytes.Swap(0); n > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "(%d bytes of audio)\n", n)
			}
		case err := <-failed:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return scanner.Err()
}
