package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"quizwhiz/internal/app"
	"quizwhiz/internal/config"
	"quizwhiz/internal/logging"
)

// NewPoolCmd groups maintenance commands for the stored question pool.
func NewPoolCmd(configPath *string) *cobra.Command {
	var driver string
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Inspect or maintain the stored question pool",
	}
	cmd.PersistentFlags().StringVar(&driver, "store", "", "question store (defaults to store.driver)")

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of stored questions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), *configPath, driver, func(ctx context.Context, service *app.QuizService) error {
				n, err := service.PoolCount(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every stored question",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPool(cmd.Context(), *configPath, driver, func(ctx context.Context, service *app.QuizService) error {
				if err := service.ClearPool(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "question pool cleared")
				return nil
			})
		},
	})

	var (
		topic string
		count int
	)
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Generate questions for a topic and store the unique ones",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if topic == "" {
				return fmt.Errorf("--topic is required")
			}
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			return withPool(cmd.Context(), *configPath, driver, func(ctx context.Context, service *app.QuizService) error {
				res, err := service.Seed(ctx, topic, count)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "generated %d, saved %d, duplicates %d, failed %d\n",
					res.Generated, res.Saved, res.Duplicates, res.Failed)
				return nil
			})
		},
	}
	seed.Flags().StringVar(&topic, "topic", "", "topic to generate questions for")
	seed.Flags().IntVar(&count, "count", 10, "number of questions to generate")
	cmd.AddCommand(seed)
	return cmd
}

func withPool(ctx context.Context, configPath, driver string, fn func(context.Context, *app.QuizService) error) error {
	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}
	if driver == "" {
		driver = cfg.Store.Driver
	}
	log := logging.New(os.Stderr, cfg.Log.Level, "text")
	b, err := openBackend(ctx, cfg, driver, log)
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(ctx, newService(cfg, b, log, nil))
}
