package bridge

import (
	"regexp"
	"strings"
)

// colorCodePattern matches in-game Minecraft-style formatting codes.
var colorCodePattern = regexp.MustCompile(`§.`)

var jsonEscaper = strings.NewReplacer(
	"\n", "\\n",
	`"`, `\"`,
	"_", "\\_",
)

// StripFormatting removes in-game color-code sequences and escapes
// newline/quote/underscore for downstream JSON embedding.
func StripFormatting(s string) string {
	s = colorCodePattern.ReplaceAllString(s, "")
	return jsonEscaper.Replace(s)
}
