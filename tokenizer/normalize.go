package tokenizer

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Normalize bringt Text in NFKC-Form und faltet Gross-/Kleinschreibung.
// Zeilenenden werden auf \n vereinheitlicht.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return cases.Fold().String(norm.NFKC.String(s))
}
