package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MaxSampleValue is the magnitude used to normalise int16 samples.
const MaxSampleValue = 32768.0

// Clip is decoded mono PCM audio.
type Clip struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the playing time of the clip.
func (c Clip) Duration() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate)
}

// ReadWAVFile decodes a PCM WAV file, down-mixing to mono 16-bit.
func ReadWAVFile(path string) (Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return Clip{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Clip{}, fmt.Errorf("%s is not a valid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("decode wav: %w", err)
	}
	channels := int(dec.NumChans)
	if channels <= 0 {
		return Clip{}, errors.New("wav file declares no channels")
	}
	shift := int(dec.BitDepth) - 16

	samples := make([]int16, len(buf.Data)/channels)
	for i := range samples {
		var sum int
		for ch := 0; ch < channels; ch++ {
			sum += buf.Data[i*channels+ch]
		}
		v := sum / channels
		switch {
		case shift > 0:
			v >>= shift
		case shift < 0:
			v <<= -shift
		}
		samples[i] = clamp16(v)
	}
	return Clip{Samples: samples, SampleRate: int(dec.SampleRate)}, nil
}

// WriteWAV encodes mono 16-bit samples into file.
func WriteWAV(file *os.File, samples []int16, sampleRate int) error {
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, len(samples)),
		SourceBitDepth: 16,
	}
	for i, s := range samples {
		buffer.Data[i] = int(s)
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteTempWAV writes samples to a new temporary WAV file and returns its
// path. The caller removes the file.
func WriteTempWAV(samples []int16, sampleRate int, pattern string) (string, error) {
	file, err := os.CreateTemp(os.TempDir(), pattern)
	if err != nil {
		return "", fmt.Errorf("temp file: %w", err)
	}
	defer file.Close()
	if err := WriteWAV(file, samples, sampleRate); err != nil {
		os.Remove(file.Name())
		return "", err
	}
	return file.Name(), nil
}

// Float32 converts int16 samples to [-1, 1).
func Float32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / MaxSampleValue
	}
	return out
}

// Int16 converts samples in [-1, 1] back to 16-bit PCM, clipping outliers.
func Int16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, v := range samples {
		out[i] = clamp16(int(v * (MaxSampleValue - 1)))
	}
	return out
}

// Resample converts samples between rates with linear interpolation.
func Resample(samples []float32, from, to int) []float32 {
	if from == to || from <= 0 || to <= 0 || len(samples) == 0 {
		return samples
	}
	n := int(int64(len(samples)) * int64(to) / int64(from))
	out := make([]float32, n)
	ratio := float64(from) / float64(to)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= last {
			out[i] = samples[last]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = samples[idx]*(1-frac) + samples[idx+1]*frac
	}
	return out
}

// Tone generates a sine wave at freq Hz with the given peak amplitude in
// [0, 1].
func Tone(sampleRate int, freq float64, amplitude float64, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		v := amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
		out[i] = clamp16(int(v * (MaxSampleValue - 1)))
	}
	return out
}

func clamp16(v int) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
