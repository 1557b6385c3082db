package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/output"
	"github.com/loqalabs/loqa-dictate/internal/stt"
	"github.com/spf13/cobra"
)

func newTranscribeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe a WAV file once and deliver the text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Telemetry, cmd.ErrOrStderr())

			clip, err := audio.ReadWAVFile(args[0])
			if err != nil {
				return err
			}
			samples := clip.Samples
			if clip.SampleRate != cfg.Audio.SampleRate {
				samples = audio.Int16(audio.Resample(audio.Float32(samples), clip.SampleRate, cfg.Audio.SampleRate))
			}
			logger.Debug("loaded audio",
				slog.String("path", args[0]),
				slog.Float64("seconds", clip.Duration()),
				slog.Int("source_rate", clip.SampleRate))

			recognizer, err := stt.New(cfg.STT)
			if err != nil {
				return err
			}
			if closer, ok := recognizer.(io.Closer); ok {
				defer closer.Close()
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(cfg.STT.TimeoutMS)*time.Millisecond)
			defer cancel()

			task := stt.NewTask(recognizer, cfg.Audio.SampleRate, stt.OptionsFromConfig(cfg.STT), logger)
			res := task.Run(ctx, samples)
			if res.Err != nil {
				if errors.Is(res.Err, stt.ErrEmptyOutput) {
					return fmt.Errorf("no speech recognized in %s", args[0])
				}
				return fmt.Errorf("transcription failed (%s): %w", stt.Kind(res.Err), res.Err)
			}

			stdout := cmd.OutOrStdout()
			cfg.Output.Stdout = true
			// auto paste targets the focused window, which is this terminal
			cfg.Output.AutoPaste = false
			return output.FromConfig(cfg.Output, stdout, logger).Deliver(ctx, res.Text)
		},
	}
}
