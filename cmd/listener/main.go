package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/azure/social-listening/internal/config"
	"github.com/azure/social-listening/internal/ingest"
	"github.com/azure/social-listening/internal/models"
	"github.com/azure/social-listening/internal/sources"
	"github.com/azure/social-listening/internal/storage"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "listener",
	Short: "listener - social listening aggregator",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load environment variables from .env file if it exists
		if err := godotenv.Load(); err != nil {
			logrus.Debug("No .env file found, using environment variables")
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingestion scheduler",
	RunE:  runServe,
}

var ingestCmd = &cobra.Command{
	Use:       "ingest <platform>",
	Short:     "Run one ingestion call and print the result",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{models.SourceRSS, models.SourceHackerNews, models.SourceMastodon, models.SourceReddit, models.SourceTwitter},
	RunE:      runIngest,
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Ingest every configured feed and saved search once",
	RunE:  runSweep,
}

var mentionsCmd = &cobra.Command{
	Use:   "mentions",
	Short: "List stored mentions as JSON",
	RunE:  runMentions,
}

var (
	ingestFlags   sources.Request
	mentionsFlags models.MentionFilter
)

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestFlags.URL, "url", "", "Feed URL (rss)")
	f.StringVar(&ingestFlags.Label, "label", "", "Source label for stored feed entries (rss)")
	f.StringVarP(&ingestFlags.Query, "query", "q", "", "Search query (hackernews, mastodon, reddit)")
	f.StringVar(&ingestFlags.Instance, "instance", "", "Mastodon instance host")
	f.StringVar(&ingestFlags.Subreddit, "subreddit", "", "Restrict the search to one subreddit (reddit)")
	f.StringVar(&ingestFlags.TweetID, "tweet-id", "", "Tweet to ingest (twitter)")
	f.StringVar(&ingestFlags.BearerToken, "bearer-token", "", "Bearer token overriding TWITTER_BEARER_TOKEN (twitter)")
	f.IntVarP(&ingestFlags.Limit, "limit", "n", 0, "Maximum results to request")
	f.BoolVar(&ingestFlags.IncludeReplies, "include-replies", false, "Also store the tweet's conversation (twitter)")

	m := mentionsCmd.Flags()
	m.StringVarP(&mentionsFlags.Query, "query", "q", "", "Case-insensitive title/summary filter")
	m.StringVar(&mentionsFlags.Source, "source", "", "Only mentions with this source tag")
	m.IntVarP(&mentionsFlags.Limit, "limit", "n", models.DefaultListLimit, "Page size (max 100)")
	m.IntVar(&mentionsFlags.Offset, "offset", 0, "Number of mentions to skip")

	archiveCmd.AddCommand(archiveListCmd, archiveGetCmd, archiveDeleteCmd)
	rootCmd.AddCommand(serveCmd, ingestCmd, sweepCmd, mentionsCmd, archiveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// app holds the components shared by every command
type app struct {
	cfg     *config.Config
	store   storage.MentionStore
	archive storage.BlobStore
	service *ingest.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	configureLogging(cfg)

	store, err := storage.Open(ctx, cfg.StorageDriver, cfg.SQLitePath, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.StorageDriver, err)
	}

	var archive storage.BlobStore
	if cfg.StorageAccount != "" {
		azure, err := storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		archive = azure
	}

	registry := sources.NewRegistry(sources.DefaultSources(sources.Credentials{
		RedditClientID:     cfg.RedditClientID,
		RedditClientSecret: cfg.RedditClientSecret,
		TwitterBearerToken: cfg.TwitterBearerToken,
	})...)

	return &app{
		cfg:     cfg,
		store:   store,
		archive: archive,
		service: ingest.NewService(cfg, store, archive, registry),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logrus.Warnf("Failed to close store: %v", err)
	}
}

func loadApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}

func configureLogging(cfg *config.Config) {
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	switch cfg.LogFormat {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.service.Run(cmd.Context(), args[0], ingestFlags)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func runSweep(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	summary, err := a.service.RunScheduled(cmd.Context())
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), summary)
}

func runMentions(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	return listMentions(cmd.Context(), a.store, mentionsFlags, cmd.OutOrStdout())
}

func listMentions(ctx context.Context, store storage.MentionStore, filter models.MentionFilter, out io.Writer) error {
	mentions, err := store.ListMentions(ctx, filter.Normalize())
	if err != nil {
		return fmt.Errorf("list mentions: %w", err)
	}
	if mentions == nil {
		mentions = []models.Mention{}
	}
	return printJSON(out, mentions)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
