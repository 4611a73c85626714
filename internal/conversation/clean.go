package conversation

import (
	"regexp"
	"strings"
)

var (
	boldPattern       = regexp.MustCompile(`\*\*(.*?)\*\*`)
	starBulletPattern = regexp.MustCompile(`\* `)
	blankRunPattern   = regexp.MustCompile(`\n\s*\n\s*\n`)
	colonSpacePattern = regexp.MustCompile(`:\s+`)
	bulletPattern     = regexp.MustCompile(`•\s*`)
	emphasisPattern   = regexp.MustCompile(`\*([^*]+)\*`)
)

// maxCleanPasses bounds CleanText's fixpoint loop.
const maxCleanPasses = 32

// CleanText strips model markdown for display: bold and emphasis markers go,
// "* " bullets become "• ", runs of blank lines collapse and spacing after
// colons and bullets is normalized. The pass is repeated until the text stops
// changing, so CleanText(CleanText(s)) == CleanText(s).
func CleanText(s string) string {
	for i := 0; i < maxCleanPasses; i++ {
		next := cleanPass(s)
		if next == s {
			break
		}
		s = next
	}
	return s
}

func cleanPass(s string) string {
	s = boldPattern.ReplaceAllString(s, "${1}")
	s = starBulletPattern.ReplaceAllString(s, "• ")
	s = blankRunPattern.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	s = colonSpacePattern.ReplaceAllString(s, ": ")
	s = bulletPattern.ReplaceAllString(s, "• ")
	s = emphasisPattern.ReplaceAllString(s, "${1}")
	return strings.TrimSpace(s)
}
