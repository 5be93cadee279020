package export

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/heimdex/smartcut/internal/timeline"
)

// GenerateEDL renders the contributing ranges of view as a CMX3600-style
// edit decision list against a single source reel.
func GenerateEDL(view timeline.SortedView, title, mediaPath string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	clipName := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	recordFrames := 0
	for i, seg := range view.Contributing() {
		inFrames := secondsToFrames(seg.Start, fps)
		outFrames := secondsToFrames(seg.End, fps)
		length := outFrames - inFrames

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "AA/V",
				framesToTimecode(inFrames, fps), framesToTimecode(outFrames, fps),
				framesToTimecode(recordFrames, fps), framesToTimecode(recordFrames+length, fps)),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName),
			fmt.Sprintf("* MEDIA PATH:  %s", mediaPath),
		)

		recordFrames += length
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

func secondsToFrames(sec float64, fps int) int {
	return int(math.Round(sec * float64(fps)))
}

func framesToTimecode(totalFrames int, fps int) string {
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
