package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/verso-reads/verso-rag/internal/chat"
	"github.com/verso-reads/verso-rag/internal/cli"
	"github.com/verso-reads/verso-rag/internal/fileid"
	"github.com/verso-reads/verso-rag/internal/indexer"
	"github.com/verso-reads/verso-rag/internal/library"
	"github.com/verso-reads/verso-rag/internal/models"
	"github.com/verso-reads/verso-rag/internal/server"
	"github.com/verso-reads/verso-rag/internal/storage"
)

// open loads config and initializes components; the caller must Close the result.
func open(flags *globalFlags) (*Components, error) {
	cfg, logger, err := setup(flags)
	if err != nil {
		return nil, err
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to initialize: %w", err)
	}
	return components, nil
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()
			return runServe(components)
		},
	}
}

func runServe(c *Components) error {
	logger := c.Logger
	defer logger.Sync()

	srv := server.NewServer(server.Deps{
		Config:    c.Config,
		Store:     c.Store,
		Manager:   c.Manager,
		Queries:   c.Queries,
		Assistant: c.Assistant,
		Keys:      c.Keys,
		Library:   c.Library,
		Metrics:   c.Metrics,
		Logger:    logger,
	})

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if c.Config.Library.Watch {
		w := library.NewWatcher(c.Library, c.Config.Library.Extensions, srv.OnLibraryChange, srv.OnLibraryRemove,
			library.WithLogger(logger))
		if err := w.Start(watchCtx); err != nil {
			return fmt.Errorf("failed to start library watcher: %w", err)
		}
		defer w.Stop()
		if err := w.Sync(); err != nil {
			logger.Warn("library sync failed", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	select {
	case <-sigChan:
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func newIndexCmd(flags *globalFlags) *cobra.Command {
	var (
		idFlag string
		title  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Index a document and wait for the run to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()

			doc, path, err := documentFor(components.Library, args[0], idFlag, title)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := components.Manager.EnsureIndexed(ctx, doc, path); err != nil {
				return fmt.Errorf("indexing failed: %s", indexer.StatusMessage(err))
			}
			chunks, err := components.Store.CountDocumentEmbeddings(ctx, doc.ID)
			if err != nil {
				return fmt.Errorf("count chunks failed: %w", err)
			}
			return cli.WriteIndexResult(cmd.OutOrStdout(), &cli.IndexResult{
				DocumentID: doc.ID,
				Path:       path,
				Chunks:     chunks,
				Message:    components.Manager.Status().Get(doc.ID).ErrorMessage,
			}, format)
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "document ID (default: derived from the file path)")
	cmd.Flags().StringVar(&title, "title", "", "document title (default: file name)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

// documentFor describes the file at path as a library document. Files inside the library
// keep the ID of their directory; other files use idFlag or an ID derived from the path.
func documentFor(lib *library.Library, path, idFlag, title string) (*models.Document, string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return nil, "", fmt.Errorf("%s is a directory", path)
	}

	relPath := absPath
	id, inLibrary := lib.ParsePath(absPath)
	switch {
	case inLibrary:
		relPath, _ = filepath.Rel(lib.Root(), absPath)
		relPath = filepath.ToSlash(relPath)
	case idFlag != "":
		id, err = uuid.Parse(idFlag)
		if err != nil {
			return nil, "", fmt.Errorf("invalid document ID %q: %w", idFlag, err)
		}
	default:
		id = fileid.DocumentID(absPath)
	}

	name := filepath.Base(absPath)
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return &models.Document{
		ID:               id,
		Title:            title,
		OriginalFilename: name,
		ContentType:      contentType(filepath.Ext(name)),
		RelativePath:     relPath,
		CreatedAt:        info.ModTime().UTC(),
	}, absPath, nil
}

func contentType(ext string) string {
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func newContextCmd(flags *globalFlags) *cobra.Command {
	var (
		idFlag    string
		maxChunks int
		output    string
	)
	cmd := &cobra.Command{
		Use:   "context --id <document-id> <query>",
		Short: "Print the passages of a document most relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			id, err := parseDocumentID(idFlag)
			if err != nil {
				return err
			}
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()

			apiKey, err := components.Keys.APIKey()
			if err != nil {
				return fmt.Errorf("context retrieval failed: %s", indexer.StatusMessage(err))
			}
			q := joinArgs(args)
			text, found, err := components.Queries.RetrieveContext(cmd.Context(), id, q, apiKey, maxChunks)
			if err != nil {
				return fmt.Errorf("context retrieval failed: %w", err)
			}
			return cli.WriteContext(cmd.OutOrStdout(), &cli.ContextResult{
				DocumentID: id,
				Query:      q,
				Context:    text,
				Found:      found,
			}, format)
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "document ID")
	cmd.Flags().IntVar(&maxChunks, "max-chunks", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var (
		idFlag   string
		selected string
	)
	cmd := &cobra.Command{
		Use:   "ask --id <document-id> <question>",
		Short: "Ask a question about a document and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(idFlag)
			if err != nil {
				return err
			}
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()

			out := cmd.OutOrStdout()
			answer, err := components.Assistant.Ask(cmd.Context(), chat.Request{
				DocumentID: id,
				Question:   joinArgs(args),
				Context:    selected,
			}, func(delta string) error {
				_, werr := io.WriteString(out, delta)
				return werr
			})
			if answer != nil && answer.Text != "" {
				fmt.Fprintln(out)
			}
			if err != nil {
				return fmt.Errorf("ask failed: %s", indexer.StatusMessage(err))
			}
			components.Logger.Debug("answer complete",
				zap.Int("context_words", answer.ContextWords),
				zap.Bool("used_retrieval", answer.UsedRetrieval))
			return nil
		},
	}
	cmd.Flags().StringVar(&idFlag, "id", "", "document ID")
	cmd.Flags().StringVar(&selected, "context", "", "selected passage to use instead of retrieval")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete the index data of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDocumentID(args[0])
			if err != nil {
				return err
			}
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()

			if err := components.Manager.DeleteDocument(cmd.Context(), id); err != nil {
				return fmt.Errorf("deletion failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document deleted: %s\n", id)
			return nil
		},
	}
}

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and storage status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cli.ParseOutputFormat(output)
			if err != nil {
				return err
			}
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()

			report, err := buildStatusReport(cmd.Context(), components)
			if err != nil {
				return err
			}
			return cli.WriteStatus(cmd.OutOrStdout(), report, format)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	return cmd
}

func buildStatusReport(ctx context.Context, c *Components) (*cli.StatusReport, error) {
	docCount, err := c.Store.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents failed: %w", err)
	}
	chunkCount, err := c.Store.CountEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks failed: %w", err)
	}
	report := &cli.StatusReport{
		Documents:      docCount,
		Chunks:         chunkCount,
		DatabasePath:   c.Config.Storage.DatabasePath,
		LibraryRoot:    c.Library.Root(),
		EmbeddingModel: c.Config.Embedding.Model,
		HasAPIKey:      c.Keys.HasAPIKey(),
	}
	if c.Config.Storage.Driver != "memory" {
		if n, err := storage.DiskUsageBytes(storage.DatabaseFiles(c.Config.Storage.DatabasePath)...); err == nil {
			report.DiskUsageBytes = n
		}
	}

	records, err := c.Store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	for _, rec := range records {
		summary := cli.DocumentSummary{
			DocumentID: rec.DocumentID,
			Title:      rec.Title,
			UpdatedAt:  rec.UpdatedAt,
		}
		if n, err := c.Store.CountDocumentEmbeddings(ctx, rec.DocumentID); err == nil {
			summary.Chunks = n
		}
		st := c.Manager.Status().Get(rec.DocumentID)
		summary.IsIndexing = st.IsIndexing
		summary.ErrorMessage = st.ErrorMessage
		report.Indexed = append(report.Indexed, summary)
	}
	return report, nil
}

func newKeyCmd(flags *globalFlags) *cobra.Command {
	key := &cobra.Command{
		Use:   "key",
		Short: "Manage the OpenAI API key in the secure store",
	}
	key.AddCommand(&cobra.Command{
		Use:   "set [api-key]",
		Short: "Store the API key (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read key: %w", err)
				}
				value = line
			}
			if strings.TrimSpace(value) == "" {
				return fmt.Errorf("API key cannot be empty")
			}
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()
			if err := components.Keys.SaveAPIKey(value); err != nil {
				return fmt.Errorf("failed to save key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key saved.")
			return nil
		},
	})
	key.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Remove the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			components, err := open(flags)
			if err != nil {
				return err
			}
			defer components.Close()
			if err := components.Keys.DeleteAPIKey(); err != nil {
				return fmt.Errorf("failed to delete key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "API key deleted.")
			return nil
		},
	})
	return key
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "verso-rag version %s\n", version)
		},
	}
}

func parseDocumentID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid document ID %q: %w", s, err)
	}
	return id, nil
}

// joinArgs joins positional words into one query, so quoting is optional.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
