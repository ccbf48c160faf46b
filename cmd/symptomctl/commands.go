package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Skufu/symptomcheck/internal/classifier"
	"github.com/Skufu/symptomcheck/internal/dataset"
)

func trainCmd(opts *options) *cobra.Command {
	var (
		seed         int64
		testFraction float64
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a fresh model and persist it",
		Long:  `Synthesize the training corpus, fit a new forest, report held-out accuracy and overwrite the persisted model.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if testFraction <= 0 || testFraction >= 1 {
				return fmt.Errorf("--test-fraction must be between 0 and 1, got %v", testFraction)
			}
			return withPipeline(cmd.Context(), opts, false, func(p *classifier.Pipeline) error {
				result, err := p.Retrain(cmd.Context())
				if err != nil {
					return err
				}
				snap := p.Snapshot()
				params := p.Params()
				fmt.Fprintf(cmd.OutOrStdout(), "trained generation %s on %d samples (%d trees, max depth %d), accuracy %.4f\n",
					snap.Generation, result.TotalSamples, params.Trees, params.MaxDepth, result.Accuracy)
				return nil
			}, classifier.WithSeed(seed), classifier.WithTestFraction(testFraction))
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", dataset.DefaultSeed, "seed for corpus synthesis and the evaluation split")
	cmd.Flags().Float64Var(&testFraction, "test-fraction", 0.2, "share of samples held out for evaluation")
	return cmd
}

func predictCmd(opts *options) *cobra.Command {
	var match bool

	cmd := &cobra.Command{
		Use:   "predict <symptom>...",
		Short: "Rank likely diseases for a set of symptoms",
		Long: `Rank likely diseases for the given symptom identifiers, e.g.

  symptomctl predict fever cough fatigue

Unknown identifiers are ignored. With --match the ranking uses symptom
overlap against the disease table instead of the trained model.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if match {
				fmt.Fprintln(w, "DISEASE\tCONFIDENCE\tMATCHED")
				for _, m := range dataset.Match(args) {
					fmt.Fprintf(w, "%s\t%d%%\t%d/%d\n", m.Disease, m.Confidence, len(m.MatchedSymptoms), m.TotalSymptoms)
				}
				return w.Flush()
			}

			return withPipeline(cmd.Context(), opts, true, func(p *classifier.Pipeline) error {
				predictions, err := p.Predict(args)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "DISEASE\tCONFIDENCE")
				for _, pr := range predictions {
					fmt.Fprintf(w, "%s\t%.2f%%\n", pr.Disease, pr.Confidence)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().BoolVar(&match, "match", false, "rank by symptom overlap instead of the model")
	return cmd
}

func infoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the persisted model's metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd.Context(), opts, true, func(p *classifier.Pipeline) error {
				info, err := p.ModelInfo()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Model:       %s\n", info.ModelType)
				fmt.Fprintf(out, "Generation:  %s\n", info.Generation)
				fmt.Fprintf(out, "Trained at:  %s\n", info.TrainedAt.Format(time.RFC3339))
				fmt.Fprintf(out, "Accuracy:    %.4f\n", info.Accuracy)
				fmt.Fprintf(out, "Trees:       %d (max depth %d)\n", info.NEstimators, info.MaxDepth)
				fmt.Fprintf(out, "Features:    %d\n", info.TotalFeatures)
				fmt.Fprintf(out, "Diseases:    %d\n\n", info.TotalDiseases)

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "SYMPTOM\tIMPORTANCE")
				for _, s := range info.TopImportantSymptoms {
					fmt.Fprintf(w, "%s\t%.4f\n", s.Symptom, s.Importance)
				}
				return w.Flush()
			})
		},
	}
}

func statsCmd(opts *options) *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the synthesized training corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPipeline(cmd.Context(), opts, false, func(p *classifier.Pipeline) error {
				stats := p.Dataset().Stats()

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total samples: %d\n\n", stats.TotalSamples)

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DISEASE\tSAMPLES")
				for _, d := range stats.Diseases {
					fmt.Fprintf(w, "%s\t%d\n", d.Name, d.Count)
				}
				fmt.Fprintln(w, "\t")
				fmt.Fprintln(w, "SYMPTOM\tOCCURRENCES")
				for _, s := range stats.TopSymptoms {
					fmt.Fprintf(w, "%s\t%d\n", s.Name, s.Count)
				}
				return w.Flush()
			}, classifier.WithSeed(seed))
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", dataset.DefaultSeed, "seed for corpus synthesis")
	return cmd
}

func symptomsCmd(_ *options) *cobra.Command {
	return &cobra.Command{
		Use:   "symptoms",
		Short: "List the symptom vocabulary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, s := range dataset.Vocabulary() {
				fmt.Fprintf(w, "%s\t%s\n", s, dataset.SymptomName(s))
			}
			return w.Flush()
		},
	}
}
