package rendition

// Target is the preferred short side in pixels.
const Target = 1080

type File struct {
	URL    string
	Width  int
	Height int
}

func (f File) shortSide() int {
	if f.Width > 0 && f.Width < f.Height {
		return f.Width
	}
	return f.Height
}

// Choose picks the file whose short side is closest to Target without going
// over it. If every file is larger, the smallest one is returned. Files
// without a URL are ignored.
func Choose(files []File) (File, bool) {
	var (
		below, above       File
		hasBelow, hasAbove bool
	)
	for _, f := range files {
		if f.URL == "" {
			continue
		}
		s := f.shortSide()
		if s <= Target {
			if !hasBelow || s > below.shortSide() {
				below, hasBelow = f, true
			}
			continue
		}
		if !hasAbove || s < above.shortSide() {
			above, hasAbove = f, true
		}
	}
	if hasBelow {
		return below, true
	}
	return above, hasAbove
}
