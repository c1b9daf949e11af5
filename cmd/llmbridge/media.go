package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/lizzyg/llmbridge"
)

var embedCmd = &cobra.Command{
	Use:   "embed text...",
	Short: "Embed each argument and print the vectors as JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE:  embedRun,
}

var imageCmd = &cobra.Command{
	Use:   "image [prompt...]",
	Short: "Generate or edit an image",
	RunE:  imageRun,
}

var (
	imageOutFlag  string
	imageEditFlag string
)

func init() {
	rootCmd.AddCommand(embedCmd, imageCmd)
	imageCmd.Flags().StringVarP(&imageOutFlag, "out", "o", "image.png", "output file")
	imageCmd.Flags().StringVarP(&imageEditFlag, "edit", "e", "", "edit this image instead of generating one")
}

func embedRun(cmd *cobra.Command, args []string) error {
	em, err := bridge.EmbeddingModel(modelKey())
	if err != nil {
		return err
	}
	segments := make([]llmbridge.TextSegment, len(args))
	for i, a := range args {
		segments[i] = llmbridge.TextSegmentOf(a)
	}
	resp, err := em.EmbedAll(cmd.Context(), segments)
	if err != nil {
		return err
	}
	vectors := make([][]float32, len(resp.Content))
	for i, e := range resp.Content {
		vectors[i] = e.Vector
	}
	return json.NewEncoder(cmd.OutOrStdout()).Encode(vectors)
}

func imageRun(cmd *cobra.Command, args []string) error {
	prompt, err := promptArg(cmd, args)
	if err != nil {
		return err
	}
	im, err := bridge.ImageModel(modelKey())
	if err != nil {
		return err
	}
	var resp llmbridge.Response[llmbridge.Image]
	if imageEditFlag != "" {
		data, err := readInput(imageEditFlag)
		if err != nil {
			return fmt.Errorf("reading %s: %w", imageEditFlag, err)
		}
		src := llmbridge.Image{
			Base64Data: base64.StdEncoding.EncodeToString(data),
			MimeType:   mimetype.Detect(data).String(),
		}
		resp, err = im.Edit(cmd.Context(), src, prompt)
		if err != nil {
			return err
		}
	} else {
		resp, err = im.Generate(cmd.Context(), prompt)
		if err != nil {
			return err
		}
	}
	img := resp.Content
	if img.Base64Data == "" {
		return errors.New("model returned an image url only: " + img.URL)
	}
	data, err := base64.StdEncoding.DecodeString(img.Base64Data)
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}
	if err := os.WriteFile(imageOutFlag, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%s, %d bytes)\n", imageOutFlag, img.MimeType, len(data))
	if img.RevisedPrompt != "" {
		fmt.Fprintln(cmd.OutOrStdout(), img.RevisedPrompt)
	}
	return nil
}
