package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/happyhackingspace/seqinfer/internal/textutil"
	"github.com/mattn/go-isatty"
)

// readInput reads the raw bytes of the file named in args, or of stdin when
// args is empty.
func readInput(args []string) ([]byte, string, error) {
	if len(args) == 0 {
		data, err := readFromStdin()
		return data, "stdin", err
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return data, args[0], nil
}

// readSequences reads feature sequences from the file named in args, or from
// stdin when args is empty. The input is either one sequence (a JSON array of
// feature objects) or a JSON array of such sequences.
func readSequences(args []string) ([][]map[string]any, string, error) {
	data, source, err := readInput(args)
	if err != nil {
		return nil, "", err
	}
	seqs, err := parseSequences(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", source, err)
	}
	slog.Debug("Input read", "source", source, "sequences", len(seqs))
	return seqs, source, nil
}

func parseSequences(data []byte) ([][]map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("input is empty")
	}
	var many [][]map[string]any
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}
	var one []map[string]any
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("expected a feature sequence or a list of them: %w", err)
	}
	return [][]map[string]any{one}, nil
}

// readText reads plain text, one sentence per non-blank line, and returns
// the tokens of each sentence with their feature sequences.
func readText(args []string) ([][]string, [][]map[string]any, error) {
	data, source, err := readInput(args)
	if err != nil {
		return nil, nil, err
	}
	var tokens [][]string
	var seqs [][]map[string]any
	for _, line := range strings.Split(string(data), "\n") {
		toks := textutil.Tokenize(line)
		if len(toks) == 0 {
			continue
		}
		tokens = append(tokens, toks)
		seqs = append(seqs, textutil.TokenFeatures(toks))
	}
	if len(seqs) == 0 {
		return nil, nil, fmt.Errorf("%s: input is empty", source)
	}
	slog.Debug("Text read", "source", source, "sentences", len(seqs))
	return tokens, seqs, nil
}

func isStdinTerminal() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func readFromStdin() ([]byte, error) {
	slog.Debug("Reading from stdin")
	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return body, nil
}

func printJSON(w io.Writer, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(output))
	return err
}
