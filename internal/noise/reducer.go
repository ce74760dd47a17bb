// Package noise implements the offline spectral-subtraction noise
// reduction pass that runs over a finished WAV file. A noise profile is
// learned from the first seconds of the recording, a per-bin gain mask
// is derived for every overlapping frame, and the masked signal is
// reconstructed by overlap-add and written back in place.
package noise

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/vdo/FRecorder/internal/config"
	"github.com/vdo/FRecorder/internal/fft"
	"github.com/vdo/FRecorder/internal/wav"
)

const (
	fftSize = 2048
	hopSize = fftSize / 2 // 50% overlap

	attackTimeSec  = 0.02
	releaseTimeSec = 0.10

	progressEveryFrames = 50
)

// ErrInsufficientProfile indicates the profile window holds fewer
// samples than one FFT frame.
var ErrInsufficientProfile = errors.New("noise: profile window smaller than FFT size")

// ProgressFunc receives completion percentages in [0, 100].
type ProgressFunc func(percent int)

// Process rewrites the WAV at path in place with noise reduction
// applied. Multi-channel files are mixed to mono for analysis and the
// processed mono signal is written back to every channel; the header is
// unchanged because the frame count is preserved.
//
// On failure after the first write has begun, the file's data chunk is
// left in an unspecified state; the capture itself is already final, so
// callers treat a failure as "reduction skipped". (A temp-file-and-rename
// variant would make this atomic; in-place matches the established
// product behavior.)
func Process(path string, cfg config.Reduction, progress ProgressFunc, log zerolog.Logger) error {
	if err := config.ValidateReduction(cfg); err != nil {
		return fmt.Errorf("noise: invalid config: %w", err)
	}

	info, err := wav.ReadInfo(path)
	if err != nil {
		return err
	}

	samples, err := wav.ReadMonoSamples(path, info)
	if err != nil {
		return err
	}
	total := len(samples)
	log.Debug().
		Int("samples", total).
		Int("sampleRate", info.SampleRate).
		Int("channels", info.Channels).
		Msg("noise reduction started")

	profileSamples := int(cfg.ProfileSeconds * float64(info.SampleRate))
	if profileSamples > total {
		profileSamples = total
	}
	if profileSamples < fftSize {
		return fmt.Errorf("%w: %d < %d", ErrInsufficientProfile, profileSamples, fftSize)
	}

	window := fft.NewHannWindow(fftSize)
	mean, std := buildProfile(samples, profileSamples, window)

	// sensitivity 0 -> mean + 3 sigma (conservative), 24 -> mean + 0 sigma.
	scale := (24.0 - cfg.Sensitivity) / 24.0 * 3.0
	numBins := fftSize/2 + 1
	threshold := make([]float64, numBins)
	for i := range threshold {
		threshold[i] = mean[i] + scale*std[i]
	}

	strength := cfg.ReductionDB / 12.0

	hopSeconds := float64(hopSize) / float64(info.SampleRate)
	attackCoeff := math.Exp(-hopSeconds / attackTimeSec)
	releaseCoeff := math.Exp(-hopSeconds / releaseTimeSec)

	output := make([]float64, total)
	windowSum := make([]float64, total)

	prevGain := make([]float64, numBins)
	for i := range prevGain {
		prevGain[i] = 1.0
	}

	re := make([]float64, fftSize)
	im := make([]float64, fftSize)
	magnitude := make([]float64, numBins)
	phase := make([]float64, numBins)
	gain := make([]float64, numBins)

	numFrames := 0
	if total >= fftSize {
		numFrames = (total-fftSize)/hopSize + 1
	}
	frame := 0

	for pos := 0; pos+fftSize <= total; pos += hopSize {
		for i := 0; i < fftSize; i++ {
			re[i] = samples[pos+i] * window[i]
			im[i] = 0
		}
		if err := fft.Forward(re, im); err != nil {
			return err
		}

		for i := 0; i < numBins; i++ {
			magnitude[i] = math.Hypot(re[i], im[i])
			phase[i] = math.Atan2(im[i], re[i])

			reduced := magnitude[i] - threshold[i]*strength
			if reduced < 0 {
				reduced = 0
			}
			if magnitude[i] > 1e-10 {
				gain[i] = reduced / magnitude[i]
			} else {
				gain[i] = 0
			}
		}

		if cfg.FreqSmoothingBands > 0 {
			gain = smoothFrequency(gain, cfg.FreqSmoothingBands)
		}

		for i := 0; i < numBins; i++ {
			if gain[i] < prevGain[i] {
				gain[i] = attackCoeff*prevGain[i] + (1.0-attackCoeff)*gain[i]
			} else {
				gain[i] = releaseCoeff*prevGain[i] + (1.0-releaseCoeff)*gain[i]
			}
			prevGain[i] = gain[i]
		}

		for i := 0; i < numBins; i++ {
			re[i] = magnitude[i] * gain[i] * math.Cos(phase[i])
			im[i] = magnitude[i] * gain[i] * math.Sin(phase[i])
		}
		// Hermitian mirror for the negative frequencies.
		for i := 1; i < fftSize/2; i++ {
			re[fftSize-i] = re[i]
			im[fftSize-i] = -im[i]
		}

		if err := fft.Inverse(re, im); err != nil {
			return err
		}

		for i := 0; i < fftSize; i++ {
			idx := pos + i
			output[idx] += re[i] * window[i]
			windowSum[idx] += window[i] * window[i]
		}

		frame++
		if progress != nil && frame%progressEveryFrames == 0 {
			progress(100 * frame / numFrames)
		}
	}

	for i := 0; i < total; i++ {
		if windowSum[i] > 1e-8 {
			output[i] /= windowSum[i]
		}
	}

	if progress != nil {
		progress(95)
	}

	if err := wav.WriteMonoSamples(path, info, output); err != nil {
		return err
	}

	if progress != nil {
		progress(100)
	}
	log.Debug().Int("frames", frame).Msg("noise reduction complete")
	return nil
}

// buildProfile accumulates per-bin magnitude statistics over the first
// profileSamples of the signal.
func buildProfile(samples []float64, profileSamples int, window fft.HannWindow) (mean, std []float64) {
	numBins := fftSize/2 + 1
	mean = make([]float64, numBins)
	std = make([]float64, numBins)
	sumMag := make([]float64, numBins)
	sumMagSq := make([]float64, numBins)

	re := make([]float64, fftSize)
	im := make([]float64, fftSize)

	frames := 0
	for pos := 0; pos+fftSize <= profileSamples; pos += hopSize {
		for i := 0; i < fftSize; i++ {
			re[i] = samples[pos+i] * window[i]
			im[i] = 0
		}
		fft.Forward(re, im)
		for i := 0; i < numBins; i++ {
			mag := math.Hypot(re[i], im[i])
			sumMag[i] += mag
			sumMagSq[i] += mag * mag
		}
		frames++
	}

	if frames > 0 {
		for i := 0; i < numBins; i++ {
			mean[i] = sumMag[i] / float64(frames)
			variance := sumMagSq[i]/float64(frames) - mean[i]*mean[i]
			std[i] = math.Sqrt(math.Max(0, variance))
		}
	}
	return mean, std
}

// smoothFrequency averages each bin with its neighbors in
// [i-bands, i+bands], clipped to the valid bin range.
func smoothFrequency(mask []float64, bands int) []float64 {
	smoothed := make([]float64, len(mask))
	for i := range mask {
		sum := 0.0
		count := 0
		lo := i - bands
		if lo < 0 {
			lo = 0
		}
		hi := i + bands
		if hi > len(mask)-1 {
			hi = len(mask) - 1
		}
		for j := lo; j <= hi; j++ {
			sum += mask[j]
			count++
		}
		smoothed[i] = sum / float64(count)
	}
	return smoothed
}
