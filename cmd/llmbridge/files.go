package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lizzyg/llmbridge"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Manage files uploaded to the Gemini Files API",
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload path",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := bridge.Files(modelKey())
		if err != nil {
			return err
		}
		file, err := f.UploadPath(cmd.Context(), args[0], fileDisplayNameFlag)
		if err != nil {
			return err
		}
		printFile(cmd.OutOrStdout(), file)
		return nil
	},
}

var filesGetCmd = &cobra.Command{
	Use:   "get name",
	Short: "Show file metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := bridge.Files(modelKey())
		if err != nil {
			return err
		}
		file, err := f.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printFile(cmd.OutOrStdout(), file)
		return nil
	},
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded files",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := bridge.Files(modelKey())
		if err != nil {
			return err
		}
		list, err := f.List(cmd.Context(), pageSizeFlag, pageTokenFlag)
		if err != nil {
			return err
		}
		for _, file := range list.Files {
			printFile(cmd.OutOrStdout(), &file)
		}
		if list.NextPageToken != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "next page token: %s\n", list.NextPageToken)
		}
		return nil
	},
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete name",
	Short: "Delete an uploaded file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := bridge.Files(modelKey())
		if err != nil {
			return err
		}
		if err := f.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

var fileDisplayNameFlag string

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesUploadCmd, filesGetCmd, filesListCmd, filesDeleteCmd)
	filesUploadCmd.Flags().StringVar(&fileDisplayNameFlag, "display-name", "", "display name")
	filesListCmd.Flags().IntVar(&pageSizeFlag, "page-size", 20, "page size")
	filesListCmd.Flags().StringVar(&pageTokenFlag, "page-token", "", "page token")
}

func printFile(w io.Writer, f *llmbridge.File) {
	fmt.Fprintf(w, "%s\t%s\t%s\t%d bytes\t%s\n", f.Name, f.State, f.MimeType, f.SizeBytes, f.URI)
}
