package cli

import (
	"log/slog"
	"time"

	"github.com/happyhackingspace/seqinfer"
	"github.com/happyhackingspace/seqinfer/sequences"
	"github.com/spf13/cobra"
)

type decodeResult struct {
	Tokens    []string             `json:"tokens,omitempty"`
	Labels    []string             `json:"labels"`
	Marginals []map[string]float64 `json:"marginals,omitempty"`
}

func (c *CLI) newDecodeCommand() *cobra.Command {
	var marginals, text bool

	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Label feature sequences from a JSON file or stdin",
		Args:  cobra.MaximumNArgs(1),
		Example: `  # Decode with exact Viterbi
  seqinfer decode sentences.json --model model.json

  # Pipe a single sequence from stdin
  echo '[{"word":"John","is-title":true},{"word":"runs"}]' | seqinfer decode

  # Use simulated annealing instead
  seqinfer decode sentences.json --finder anneal

  # Tune the search from a config file
  seqinfer decode sentences.json --config search.yaml

  # Include per-element label marginals
  seqinfer decode sentences.json --marginals

  # Tokenize plain text, one sentence per line
  seqinfer decode --text article.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && isStdinTerminal() {
				return cmd.Help()
			}
			var seqs [][]map[string]any
			var tokens [][]string
			var err error
			if text {
				tokens, seqs, err = readText(args)
			} else {
				seqs, _, err = readSequences(args)
			}
			if err != nil {
				return err
			}
			d, err := c.decoder()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			start := time.Now()
			results := make([]decodeResult, len(seqs))
			for i, features := range seqs {
				labels, err := d.Decode(ctx, features)
				if err != nil {
					return err
				}
				results[i].Labels = labels
				if tokens != nil {
					results[i].Tokens = tokens[i]
				}
				if marginals {
					if results[i].Marginals, err = d.Marginals(ctx, features); err != nil {
						return err
					}
				}
			}
			slog.Debug("Decoding completed", "sequences", len(seqs), "finder", d.Config().Finder, "duration", time.Since(start))
			return printJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().BoolVar(&marginals, "marginals", false, "Include label marginals")
	cmd.Flags().BoolVar(&text, "text", false, "Read plain text, one sentence per line, instead of JSON features")
	return cmd
}

func (c *CLI) newKBestCommand() *cobra.Command {
	var k int

	cmd := &cobra.Command{
		Use:   "kbest [file]",
		Short: "List the k highest scoring labelings of each sequence",
		Args:  cobra.MaximumNArgs(1),
		Example: `  seqinfer kbest sentences.json -k 3
  cat sentence.json | seqinfer kbest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && isStdinTerminal() {
				return cmd.Help()
			}
			seqs, _, err := readSequences(args)
			if err != nil {
				return err
			}
			d, err := c.decoder()
			if err != nil {
				return err
			}

			start := time.Now()
			results := make([][]seqinfer.Labeling, len(seqs))
			for i, features := range seqs {
				if results[i], err = d.DecodeKBest(cmd.Context(), features, k); err != nil {
					return err
				}
			}
			slog.Debug("K-best search completed", "sequences", len(seqs), "duration", time.Since(start))
			return printJSON(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 0, "Number of labelings per sequence (default: from config)")
	return cmd
}

func (c *CLI) newLatticeCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "lattice [file]",
		Short:   "Print the Viterbi lattice of each sequence as JSON",
		Args:    cobra.MaximumNArgs(1),
		Example: `  seqinfer lattice sentence.json --model model.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && isStdinTerminal() {
				return cmd.Help()
			}
			seqs, _, err := readSequences(args)
			if err != nil {
				return err
			}
			d, err := c.decoder()
			if err != nil {
				return err
			}

			results := make([]*sequences.Lattice, len(seqs))
			for i, features := range seqs {
				lat, err := d.Lattice(cmd.Context(), features)
				if err != nil {
					return err
				}
				slog.Debug("Lattice built", "sequence", i, "states", len(lat.States), "edges", len(lat.Edges))
				results[i] = lat
			}
			return printJSON(cmd.OutOrStdout(), results)
		},
	}
}
