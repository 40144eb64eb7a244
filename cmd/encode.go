package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhasspy/kaldi-align/internal/config"
	"github.com/rhasspy/kaldi-align/internal/phonemize"
	"github.com/rhasspy/kaldi-align/internal/worker"
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode aligned utterances as phoneme id rows",
	Long: `Encode renders each aligned utterance's words to phoneme symbols and
writes one id|i1 i2 i3 row per utterance, assigning integer ids in
first-seen order. Persist the id map with --phoneme-ids and pass the same
file on later runs to keep ids stable.`,
	RunE: runEncode,
}

var (
	encodeAlignments string
	encodeOutput     string
	encodeTablePath  string
	encodeHasSpeaker bool
	encodeLanguage   string
	encodeGruutPath  string
)

func init() {
	defaults := config.Default()

	encodeCmd.Flags().StringVar(&encodeAlignments, "alignments", "", "alignment JSONL file")
	encodeCmd.Flags().StringVarP(&encodeOutput, "output", "o", "", "encoded CSV path (default: stdout)")
	encodeCmd.Flags().StringVar(&encodeTablePath, "phoneme-ids", "", "phoneme id map file, loaded if present and written back")
	encodeCmd.Flags().BoolVar(&encodeHasSpeaker, "has-speaker", false, "write id|speaker|ids rows")
	encodeCmd.Flags().StringVarP(&encodeLanguage, "language", "l", defaults.Language, "phonemizer language code")
	encodeCmd.Flags().StringVar(&encodeGruutPath, "gruut", "gruut", "gruut executable for phonemization")

	encodeCmd.MarkFlagRequired("alignments")

	rootCmd.AddCommand(encodeCmd)
}

func runEncode(cmd *cobra.Command, args []string) error {
	phonemizer := &phonemize.Gruut{
		Path:     encodeGruutPath,
		Language: config.ResolveLanguage(encodeLanguage),
	}
	if !phonemizer.Available() {
		return fmt.Errorf("gruut not found: %s", encodeGruutPath)
	}

	var out io.Writer = os.Stdout
	if encodeOutput != "" {
		f, err := os.Create(encodeOutput)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := worker.RunEncode(ctx, phonemizer, out, worker.EncodeOptions{
		AlignmentsPath: encodeAlignments,
		TablePath:      encodeTablePath,
		HasSpeaker:     encodeHasSpeaker,
	})
	if err != nil {
		return err
	}

	if !quiet {
		slog.Info("done", "encoded", stats.Encoded, "skipped", stats.Skipped)
	}
	return nil
}
