package style

// Resolve computes the intermediate resize dimensions of a canvas-composited
// (non keep-aspect) spec for a source of srcWidth x srcHeight.
//
// Exactly one returned axis is constrained; the other is 0, which tells the
// resize step to derive it from the aspect ratio. Fit constrains the longer
// source axis, fill the shorter one. Neither mode enlarges past the source.
func Resolve(spec Spec, srcWidth, srcHeight int) (width, height int) {
	portrait := srcWidth < srcHeight

	switch spec.cover {
	case Fill:
		if portrait {
			return min(srcWidth, spec.width), 0
		}
		return 0, min(srcHeight, spec.height)
	default:
		if portrait {
			return 0, min(srcHeight, spec.height)
		}
		return min(srcWidth, spec.width), 0
	}
}
