package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/happyhackingspace/seqinfer"
	"github.com/spf13/cobra"
)

var allFinders = []string{
	seqinfer.FinderExact,
	seqinfer.FinderBeam,
	seqinfer.FinderKBest,
	seqinfer.FinderSampler,
	seqinfer.FinderGibbs,
	seqinfer.FinderAnneal,
}

// finderReport compares one finder against exact decoding.
type finderReport struct {
	Finder          string
	SequenceCorrect int
	SequenceTotal   int
	ElementCorrect  int
	ElementTotal    int
	MeanScoreGap    float64
	Duration        time.Duration
}

func (c *CLI) newCompareCommand() *cobra.Command {
	var finders string

	cmd := &cobra.Command{
		Use:   "compare [file]",
		Short: "Compare approximate finders with exact Viterbi on the same input",
		Args:  cobra.MaximumNArgs(1),
		Example: `  seqinfer compare sentences.json
  seqinfer compare sentences.json --finders beam,gibbs --config search.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && isStdinTerminal() {
				return cmd.Help()
			}
			seqs, source, err := readSequences(args)
			if err != nil {
				return err
			}
			base, err := c.decoder()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			slog.Info("Comparing finders", "source", source, "sequences", len(seqs), "finders", finders)

			exactCfg := base.Config()
			exactCfg.Finder = seqinfer.FinderExact
			exact, err := seqinfer.NewDecoder(base.Model(), &exactCfg)
			if err != nil {
				return err
			}
			reference := make([][]string, len(seqs))
			refScores := make([]float64, len(seqs))
			for i, features := range seqs {
				if reference[i], err = exact.Decode(ctx, features); err != nil {
					return err
				}
				if refScores[i], err = exact.Score(features, reference[i]); err != nil {
					return err
				}
			}

			var reports []finderReport
			for _, name := range strings.Split(finders, ",") {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				cfg := base.Config()
				cfg.Finder = name
				d, err := seqinfer.NewDecoder(base.Model(), &cfg)
				if err != nil {
					return err
				}
				r := finderReport{Finder: name}
				start := time.Now()
				for i, features := range seqs {
					labels, err := d.Decode(ctx, features)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					score, err := d.Score(features, labels)
					if err != nil {
						return err
					}
					r.SequenceTotal++
					if slices.Equal(labels, reference[i]) {
						r.SequenceCorrect++
					}
					for t := range labels {
						r.ElementTotal++
						if labels[t] == reference[i][t] {
							r.ElementCorrect++
						}
					}
					r.MeanScoreGap += refScores[i] - score
				}
				r.Duration = time.Since(start)
				if r.SequenceTotal > 0 {
					r.MeanScoreGap /= float64(r.SequenceTotal)
				}
				slog.Debug("Finder done", "finder", name, "duration", r.Duration)
				reports = append(reports, r)
			}
			printReports(cmd.OutOrStdout(), reports)
			return nil
		},
	}

	cmd.Flags().StringVar(&finders, "finders", strings.Join(allFinders[1:], ","), "Comma-separated finders to compare")
	return cmd
}

func printReports(w io.Writer, reports []finderReport) {
	_, _ = fmt.Fprintf(w, "%8s  %9s  %9s  %10s  %10s\n", "finder", "seq acc", "elem acc", "score gap", "time")
	for _, r := range reports {
		_, _ = fmt.Fprintf(w, "%8s  %8.1f%%  %8.1f%%  %10.4f  %10s\n",
			r.Finder, percent(r.SequenceCorrect, r.SequenceTotal), percent(r.ElementCorrect, r.ElementTotal),
			r.MeanScoreGap, r.Duration.Round(time.Microsecond))
	}
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
