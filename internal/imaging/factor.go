package imaging

import "math"

// ComputeSampleFactor returns the integer by which each linear dimension of a
// srcW x srcH image is reduced to fit a dstW x dstH bound. A source that fits
// on both axes is not reduced. Otherwise the larger of the two axis ratios is
// rounded to the nearest integer, so the result may overshoot the bound by
// less than one sample step.
func ComputeSampleFactor(srcW, srcH, dstW, dstH int) int {
	dstW = max(dstW, 1)
	dstH = max(dstH, 1)
	if srcW <= dstW && srcH <= dstH {
		return 1
	}

	heightScale := float64(srcH) / float64(dstH)
	widthScale := float64(srcW) / float64(dstW)
	factor := int(math.Floor(math.Max(heightScale, widthScale) + 0.5))
	return max(factor, 1)
}

// scaledSize is the output size of sampling every factor-th pixel.
func scaledSize(w, h, factor int) (int, int) {
	return (w + factor - 1) / factor, (h + factor - 1) / factor
}
