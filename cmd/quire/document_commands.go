package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"quire/internal/api"
)

const defaultChunkSize = 1 << 20

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var chunkSize int
	cmd := &cobra.Command{
		Use:   "upload FILE",
		Short: "Spool a document in chunks and print its identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			if len(data) == 0 {
				return fmt.Errorf("%s is empty", args[0])
			}

			size := alignChunkSize(chunkSize)
			var identifier string
			chunks := 0
			for offset := 0; offset < len(data); offset += size {
				end := min(offset+size, len(data))
				identifier, err = client.Upload(cmd.Context(), identifier, data[offset:end], end == len(data))
				if err != nil {
					return wrapDialError(err, client.Endpoint())
				}
				chunks++
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"identifier": identifier, "chunks": chunks, "bytes": len(data)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), identifier)
			return nil
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", defaultChunkSize, "Bytes per upload chunk (rounded down to a multiple of 3)")
	return cmd
}

// alignChunkSize keeps every non-final chunk's base64 free of padding.
func alignChunkSize(size int) int {
	size -= size % api.UploadChunkAlign
	if size <= 0 {
		return api.UploadChunkAlign
	}
	return size
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var (
		identifier string
		from       string
		to         string
		output     string
		clientID   string
	)
	cmd := &cobra.Command{
		Use:   "convert [FILE]",
		Short: "Convert a file, or a spooled upload with --id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (identifier != "") {
				return errors.New("pass either FILE or --id")
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}

			var data []byte
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read %s: %w", args[0], err)
				}
				if from == "" {
					from = formatFromPath(args[0])
				}
			}
			out, err := client.Convert(cmd.Context(), data, identifier, from, to, clientID)
			if err != nil {
				return wrapDialError(err, client.Endpoint())
			}
			return writeDocument(cmd, output, out)
		},
	}
	cmd.Flags().StringVar(&identifier, "id", "", "Spool identifier returned by upload")
	cmd.Flags().StringVar(&from, "from", "", "Input format tag (defaults to the file extension)")
	cmd.Flags().StringVar(&to, "to", "pdf", "Output format tag")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result here instead of stdout")
	cmd.Flags().StringVar(&clientID, "client", "quire-cli", "Client tag recorded in logs and history")
	return cmd
}

func newJoinCommand(ctx *commandContext) *cobra.Command {
	var (
		from     string
		to       string
		output   string
		clientID string
	)
	cmd := &cobra.Command{
		Use:   "join ID [ID...]",
		Short: "Merge spooled uploads, in order, into one document",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out, err := client.Join(cmd.Context(), args, from, to, clientID)
			if err != nil {
				return wrapDialError(err, client.Endpoint())
			}
			return writeDocument(cmd, output, out)
		},
	}
	cmd.Flags().StringVar(&from, "from", "odt", "Input format tag")
	cmd.Flags().StringVar(&to, "to", "pdf", "Output format tag")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the result here instead of stdout")
	cmd.Flags().StringVar(&clientID, "client", "quire-cli", "Client tag recorded in logs and history")
	return cmd
}

func formatFromPath(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

func writeDocument(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(data), path)
	return nil
}
