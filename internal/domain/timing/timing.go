package timing

import "math"

// FPS is the constant output frame rate of every cut, join and concat.
const FPS = 30

// FrameTolerance is the duration of one output frame.
const FrameTolerance = 1.0 / FPS

// LoopCount returns how many whole plays of a source clip cover target:
// n*source >= target and (n-1)*source < target. The cut trims the excess.
func LoopCount(sourceSeconds, targetSeconds float64) int {
	if sourceSeconds <= 0 || targetSeconds <= 0 {
		return 1
	}
	if sourceSeconds >= targetSeconds {
		return 1
	}
	return int(math.Ceil(targetSeconds / sourceSeconds))
}

// SplitDurations divides total into n sub-clip lengths whose sum is exactly
// total. With per > 0 the first n-1 parts take per seconds and the last part
// absorbs the remainder, unless that would leave the last part with less than
// half of per; then the split is even.
func SplitDurations(total float64, n int, per float64) []float64 {
	if n <= 0 || total <= 0 {
		return nil
	}
	out := make([]float64, n)
	if n == 1 {
		out[0] = total
		return out
	}
	if per > 0 && total-per*float64(n-1) >= per/2 {
		for i := 0; i < n-1; i++ {
			out[i] = per
		}
		out[n-1] = total - per*float64(n-1)
		return out
	}
	each := total / float64(n)
	sum := 0.0
	for i := 0; i < n-1; i++ {
		out[i] = each
		sum += each
	}
	out[n-1] = total - sum
	return out
}

// FrameTimestamps returns n evenly spaced offsets inside the clip, keeping
// clear of the first and last 10%.
func FrameTimestamps(durationSeconds float64, n int) []float64 {
	if n <= 0 || durationSeconds <= 0 {
		return nil
	}
	start := durationSeconds * 0.1
	span := durationSeconds * 0.8
	out := make([]float64, n)
	if n == 1 {
		out[0] = start + span/2
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = start + span*float64(i)/float64(n-1)
	}
	return out
}
