package device

import "github.com/MrWong99/roboface/pkg/audio"

// renderAt adapts render, which produces audio at ctxRate, to a device
// callback running at devRate. The context clock keeps advancing in context
// frames; only the samples handed to the device are resampled.
func renderAt(render func(out []float32), ctxRate, devRate int) func(out []float32) {
	if ctxRate == devRate || ctxRate <= 0 || devRate <= 0 {
		return render
	}
	rs := audio.NewStreamResampler(ctxRate, devRate)
	var fifo, block []float32
	return func(out []float32) {
		for len(fifo) < len(out) {
			n := (len(out)-len(fifo))*ctxRate/devRate + 1
			if cap(block) < n {
				block = make([]float32, n)
			}
			block = block[:n]
			render(block)
			fifo = append(fifo, rs.Process(block)...)
		}
		copy(out, fifo)
		fifo = fifo[:copy(fifo, fifo[len(out):])]
	}
}

// captureAt converts device blocks at devRate to ctxRate. The returned
// function is called from a single device thread; its result is a fresh
// slice the caller may keep.
func captureAt(devRate, ctxRate int) func(in []float32) []float32 {
	rs := audio.NewStreamResampler(devRate, ctxRate)
	return func(in []float32) []float32 {
		out := rs.Process(in)
		block := make([]float32, len(out))
		copy(block, out)
		return block
	}
}

// deviceFrames scales a block size given at ctxRate to devRate so both span
// the same duration.
func deviceFrames(frames, ctxRate, devRate int) int {
	if ctxRate <= 0 || devRate <= 0 || ctxRate == devRate {
		return frames
	}
	return max(1, frames*devRate/ctxRate)
}
