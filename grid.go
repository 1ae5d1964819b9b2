package haven

// GridLine is one bar or beat marker on the timeline.
type GridLine struct {
	Time       float64 `json:"time"`
	IsBarStart bool    `json:"is_bar_start"`
	BarNumber  int     `json:"bar_number"`
}

// GridLines returns the bar/beat markers strictly inside [start, end]. Bars
// are 4*60/bpm seconds long; resolution subdivides each bar (1 = bars only,
// 4 = beats).
func GridLines(bpm, start, end float64, resolution int) []GridLine {
	if bpm <= 0 || end <= start {
		return nil
	}
	if resolution < 1 {
		resolution = 1
	}
	barLen := 4 * 60 / bpm
	step := barLen / float64(resolution)
	var lines []GridLine
	// first subdivision index at or before start
	idx := int(start / step)
	for {
		t := float64(idx) * step
		if t >= end {
			break
		}
		if t > start {
			lines = append(lines, GridLine{
				Time:       t,
				IsBarStart: idx%resolution == 0,
				BarNumber:  idx/resolution + 1,
			})
		}
		idx++
	}
	return lines
}
