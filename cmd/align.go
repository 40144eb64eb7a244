package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rhasspy/kaldi-align/internal/config"
	"github.com/rhasspy/kaldi-align/internal/engine"
	"github.com/rhasspy/kaldi-align/internal/phonemize"
	"github.com/rhasspy/kaldi-align/internal/worker"
)

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Align utterances against their transcripts",
	Long: `Align runs the forced-alignment engine over every utterance in the
metadata file and writes one alignment record per utterance to a JSONL
file. Utterances the engine cannot align are recorded with an empty word
list so later stages can account for them.`,
	RunE: runAlign,
}

var (
	alignMetadata      string
	alignAudioFiles    string
	alignOutput        string
	alignCleanMetadata string
	alignHasSpeaker    bool
	alignNumJobs       int
	alignTimeoutSec    int
	alignRateLimit     int
	alignerPath        string
	alignerArgs        []string
	alignLanguage      string
	gruutPath          string
)

func init() {
	defaults := config.Default()

	alignCmd.Flags().StringVar(&alignMetadata, "metadata", "", "CSV metadata with id|text rows")
	alignCmd.Flags().StringVar(&alignAudioFiles, "audio-files", "", "file listing audio paths, one per line (stem = utterance id)")
	alignCmd.Flags().StringVarP(&alignOutput, "output", "o", "", "alignment JSONL output path")
	alignCmd.Flags().StringVar(&alignCleanMetadata, "clean-metadata", "", "optional path for metadata with cleaned transcripts")
	alignCmd.Flags().BoolVar(&alignHasSpeaker, "has-speaker", false, "metadata has id|speaker|text rows")
	alignCmd.Flags().IntVarP(&alignNumJobs, "num-jobs", "j", defaults.NumJobs, "max concurrent alignment jobs")
	alignCmd.Flags().IntVar(&alignTimeoutSec, "timeout", defaults.AlignTimeoutSec, "per-utterance engine timeout in seconds")
	alignCmd.Flags().IntVar(&alignRateLimit, "rate-limit", defaults.RateLimitPerMin, "engine invocations per minute, 0 = unlimited")
	alignCmd.Flags().StringVar(&alignerPath, "aligner", "kaldi-align-engine", "alignment engine executable")
	alignCmd.Flags().StringSliceVar(&alignerArgs, "aligner-arg", nil, "extra argument for the engine (repeatable)")
	alignCmd.Flags().StringVarP(&alignLanguage, "language", "l", defaults.Language, "phonemizer language code")
	alignCmd.Flags().StringVar(&gruutPath, "gruut", "gruut", "gruut executable for text cleaning")

	alignCmd.MarkFlagRequired("metadata")
	alignCmd.MarkFlagRequired("audio-files")
	alignCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(alignCmd)
}

func runAlign(cmd *cobra.Command, args []string) error {
	aligner := &engine.Command{Path: alignerPath, Args: alignerArgs}
	if !aligner.Available() {
		return fmt.Errorf("alignment engine not found: %s", alignerPath)
	}

	phonemizer := &phonemize.Gruut{
		Path:     gruutPath,
		Language: config.ResolveLanguage(alignLanguage),
	}
	if !phonemizer.Available() {
		return fmt.Errorf("gruut not found: %s", gruutPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := worker.RunAlign(ctx, aligner, phonemizer, worker.AlignOptions{
		MetadataPath:      alignMetadata,
		AudioFilesPath:    alignAudioFiles,
		OutputPath:        alignOutput,
		CleanMetadataPath: alignCleanMetadata,
		HasSpeaker:        alignHasSpeaker,
		NumJobs:           alignNumJobs,
		AlignTimeout:      time.Duration(alignTimeoutSec) * time.Second,
		RateLimitPerMin:   alignRateLimit,
	})
	if err != nil {
		return err
	}

	if !quiet {
		slog.Info("done", "total", stats.Total, "aligned", stats.Aligned, "failed", stats.Failed)
	}
	if stats.Aligned == 0 && stats.Total > 0 {
		fmt.Fprintln(os.Stderr, "warning: no utterance could be aligned")
	}
	return nil
}
