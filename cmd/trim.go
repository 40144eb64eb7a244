package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rhasspy/kaldi-align/internal/config"
	"github.com/rhasspy/kaldi-align/internal/worker"
)

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Cut aligned utterances to their word boundaries",
	Long: `Trim reads an alignment JSONL file and removes audio before the first
aligned word and after the last one, writing one WAV per utterance plus a
metadata.csv listing only the utterances that produced output. Unaligned
utterances are excluded.`,
	RunE: runTrim,
}

var (
	trimAlignments string
	trimMetadata   string
	trimAudioFiles string
	trimOutputDir  string
	trimHasSpeaker bool
	trimNumJobs    int
	trimBufferSec  float64
	trimMinSec     float64
)

func init() {
	defaults := config.Default()

	trimCmd.Flags().StringVar(&trimAlignments, "alignments", "", "alignment JSONL file")
	trimCmd.Flags().StringVar(&trimMetadata, "metadata", "", "CSV metadata with id|text rows")
	trimCmd.Flags().StringVar(&trimAudioFiles, "audio-files", "", "file listing audio paths, one per line (stem = utterance id)")
	trimCmd.Flags().StringVar(&trimOutputDir, "output-dir", "", "directory for trimmed audio files")
	trimCmd.Flags().BoolVar(&trimHasSpeaker, "has-speaker", false, "metadata has id|speaker|text rows")
	trimCmd.Flags().IntVarP(&trimNumJobs, "num-jobs", "j", defaults.NumJobs, "max concurrent trim jobs")
	trimCmd.Flags().Float64Var(&trimBufferSec, "buffer-sec", defaults.BufferSec, "seconds of audio kept around the aligned words")
	trimCmd.Flags().Float64Var(&trimMinSec, "min-sec", defaults.MinSec, "minimum duration of a trimmed file in seconds")

	trimCmd.MarkFlagRequired("alignments")
	trimCmd.MarkFlagRequired("metadata")
	trimCmd.MarkFlagRequired("audio-files")
	trimCmd.MarkFlagRequired("output-dir")

	rootCmd.AddCommand(trimCmd)
}

func runTrim(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stats, err := worker.RunTrim(ctx, worker.TrimOptions{
		AlignmentsPath: trimAlignments,
		MetadataPath:   trimMetadata,
		AudioFilesPath: trimAudioFiles,
		OutputDir:      trimOutputDir,
		HasSpeaker:     trimHasSpeaker,
		NumJobs:        trimNumJobs,
		Settings: config.TrimSettings{
			BufferSec: trimBufferSec,
			MinSec:    trimMinSec,
		},
	})
	if err != nil {
		return err
	}

	if !quiet {
		slog.Info("done", "trimmed", stats.Trimmed, "skipped", stats.Skipped)
	}
	return nil
}
