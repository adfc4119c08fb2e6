package main

import (
	"context"
	"fmt"
	"io"

	"github.com/azure/social-listening/internal/storage"
	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Inspect ingestion snapshots in Azure Blob Storage",
}

var archiveListCmd = &cobra.Command{
	Use:   "list [prefix]",
	Short: "List archived snapshots, e.g. mentions/reddit/2024-05-01/",
	Args:  cobra.MaximumNArgs(1),
	RunE:  withArchive(runArchiveList),
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Print one archived snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  withArchive(runArchiveGet),
}

var archiveDeleteCmd = &cobra.Command{
	Use:   "delete <name>...",
	Short: "Delete archived snapshots",
	Args:  cobra.MinimumNArgs(1),
	RunE:  withArchive(runArchiveDelete),
}

type archiveFunc func(ctx context.Context, archive storage.BlobStore, args []string, out io.Writer) error

func withArchive(fn archiveFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := loadApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if a.archive == nil {
			return fmt.Errorf("no archive configured, set AZURE_STORAGE_ACCOUNT")
		}
		return fn(cmd.Context(), a.archive, args, cmd.OutOrStdout())
	}
}

func runArchiveList(ctx context.Context, archive storage.BlobStore, args []string, out io.Writer) error {
	prefix := "mentions/"
	if len(args) == 1 {
		prefix = args[0]
	}
	names, err := archive.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}

func runArchiveGet(ctx context.Context, archive storage.BlobStore, args []string, out io.Writer) error {
	data, err := archive.Retrieve(ctx, args[0])
	if err != nil {
		return err
	}
	_, err = out.Write(append(data, '\n'))
	return err
}

func runArchiveDelete(ctx context.Context, archive storage.BlobStore, args []string, out io.Writer) error {
	for _, name := range args {
		if err := archive.Delete(ctx, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s\n", name)
	}
	return nil
}
