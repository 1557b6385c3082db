package runtime

import (
	"fmt"

	"github.com/loqalabs/loqa-dictate/internal/audio"
	"github.com/loqalabs/loqa-dictate/internal/config"
)

// newCapture builds the configured input. The returned close func releases
// device resources and is never nil.
func newCapture(cfg config.AudioConfig) (audio.Capture, func() error, error) {
	switch cfg.Backend {
	case "portaudio":
		c, err := audio.NewPortAudioCapture(cfg.SampleRate, cfg.FramesPerBuffer)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case "synthetic", "":
		clip, err := syntheticClip(cfg)
		if err != nil {
			return nil, nil, err
		}
		return audio.NewSyntheticCapture(clip, cfg.SampleRate, cfg.FramesPerBuffer), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown audio backend %q", cfg.Backend)
	}
}

func syntheticClip(cfg config.AudioConfig) ([]int16, error) {
	if cfg.SourceFile == "" {
		n := cfg.SampleRate * cfg.ToneMS / 1000
		return audio.Tone(cfg.SampleRate, 440, 0.3, n), nil
	}
	clip, err := audio.ReadWAVFile(cfg.SourceFile)
	if err != nil {
		return nil, fmt.Errorf("load synthetic source: %w", err)
	}
	if clip.SampleRate == cfg.SampleRate {
		return clip.Samples, nil
	}
	return audio.Int16(audio.Resample(audio.Float32(clip.Samples), clip.SampleRate, cfg.SampleRate)), nil
}
