package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// reUnsafe matches anything other than letters, digits, underscore, hyphen,
// and whitespace.
var reUnsafe = regexp.MustCompile(`[^\p{L}\p{N}_\-\s]`)

// SafeStem turns a title into a filesystem-safe artifact stem.
func SafeStem(title string) string {
	s := strings.TrimSpace(reUnsafe.ReplaceAllString(title, "_"))
	if s == "" {
		return "untitled"
	}
	return s
}

// ArtifactPath builds the path for one artifact of an asset.
//
//	single user artifact:  <outputDir>/<stem>_user.mp4
//	single bot artifact:   <outputDir>/<stem>_bot.mp4
//	bot segment i of n:    <outputDir>/<stem>_bot_partNN.mp4   (NN is 1-based)
func ArtifactPath(outputDir, stem, channel string, index, count int) string {
	if count <= 1 {
		return filepath.Join(outputDir, fmt.Sprintf("%s_%s.mp4", stem, channel))
	}
	return filepath.Join(outputDir, fmt.Sprintf("%s_%s_part%02d.mp4", stem, channel, index+1))
}

func itoa(n int) string { return strconv.Itoa(n) }
