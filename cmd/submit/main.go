package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/simple-submit/pkg/simplesubmit"
	"github.com/tendant/simple-submit/pkg/simplesubmit/config"
	"github.com/tendant/simple-submit/pkg/simplesubmit/hydroshare"
	s3storage "github.com/tendant/simple-submit/pkg/simplesubmit/storage/s3"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load()

	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand creates the submit CLI
func NewRootCommand() *cobra.Command {
	var (
		token    string
		apiURL   string
		siteURL  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "submit <draft.yaml>",
		Short: "Submit a contribution to HydroShare",
		Long: `Create a HydroShare resource from a YAML draft.

The draft lists the metadata fields, the files to upload and an optional
thumbnail. Thumbnails need S3_BUCKET_NAME and the other S3_* variables.`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("HS_TOKEN")
			}

			df, closeFiles, err := loadDraft(args[0])
			if err != nil {
				return err
			}
			defer closeFiles()

			opts := []simplesubmit.Option{
				simplesubmit.WithRepository(hydroshare.New(
					hydroshare.WithBaseURL(apiURL),
					hydroshare.WithSiteURL(siteURL),
					hydroshare.WithToken(token),
				)),
				simplesubmit.WithIdentity(simplesubmit.StaticIdentity(token)),
				simplesubmit.WithProfile(simplesubmit.ProfileFor(df.Contribution)),
				simplesubmit.WithHooks(printHooks(cmd.OutOrStdout())),
				simplesubmit.WithLogger(config.NewLogger(logLevel)),
			}

			store, err := thumbnailStoreFromEnv()
			if err != nil {
				return err
			}
			if store != nil {
				opts = append(opts, simplesubmit.WithThumbnailStore(store))
			}

			pipeline, err := simplesubmit.NewPipeline(opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result := pipeline.Submit(ctx, df.Draft)
			if result.Err != nil {
				if result.Orphaned {
					fmt.Fprintf(cmd.ErrOrStderr(), "Resource %s was created but is incomplete: %s\n",
						result.ResourceID, result.ResourceURL)
				}
				return result.Err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Resource: %s\n", result.ResourceURL)
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "HydroShare access token (default $HS_TOKEN)")
	cmd.Flags().StringVar(&apiURL, "api-url", hydroshare.DefaultBaseURL, "HydroShare REST API root")
	cmd.Flags().StringVar(&siteURL, "site-url", hydroshare.DefaultSiteURL, "HydroShare site for resource links")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")

	cmd.SetContext(context.Background())
	return cmd
}

// printHooks writes every progress event as it happens
func printHooks(w io.Writer) *simplesubmit.Hooks {
	hooks := &simplesubmit.Hooks{}
	hooks.AddEventHook(func(ctx context.Context, event simplesubmit.Event) {
		fmt.Fprintf(w, "[%s] %s\n", event.Kind, event.Message)
	})
	return hooks
}

// thumbnailStoreFromEnv returns an S3 store when S3_BUCKET_NAME is set, and nil otherwise
func thumbnailStoreFromEnv() (simplesubmit.ThumbnailStore, error) {
	var s3cfg config.S3Config
	if err := cleanenv.ReadEnv(&s3cfg); err != nil {
		return nil, fmt.Errorf("failed to read S3 environment: %w", err)
	}
	if s3cfg.Bucket == "" {
		return nil, nil
	}
	return s3storage.New(s3storage.Config{
		Region:          s3cfg.Region,
		Bucket:          s3cfg.Bucket,
		AccessKeyID:     s3cfg.AccessKey,
		SecretAccessKey: s3cfg.SecretKey,
		Endpoint:        s3cfg.Endpoint,
		UsePathStyle:    s3cfg.Endpoint != "",
		PublicBaseURL:   s3cfg.PublicBaseURL,
		KeyPrefix:       s3cfg.KeyPrefix,
	})
}
