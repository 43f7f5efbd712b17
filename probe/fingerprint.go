package probe

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// Fingerprint hashes the tag skeleton of a page (tags and depth, no text or
// attributes). Two loads of the same chat UI share a fingerprint; a
// redesign changes it.
func Fingerprint(src string) string {
	h := sha256.Sum256([]byte(skeleton(src)))
	return fmt.Sprintf("%x", h[:16])
}

func skeleton(src string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(src))
	depth := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.StartTagToken:
			name, _ := z.TagName()
			fmt.Fprintf(&b, "%d:%s;", depth, name)
			if !isVoidElement(string(name)) {
				depth++
			}
		case html.SelfClosingTagToken:
			name, _ := z.TagName()
			fmt.Fprintf(&b, "%d:%s;", depth, name)
		case html.EndTagToken:
			if depth > 0 {
				depth--
			}
		}
	}
}

func isVoidElement(name string) bool {
	switch name {
	case "area", "base", "br", "col", "embed", "hr", "img", "input",
		"link", "meta", "param", "source", "track", "wbr":
		return true
	}
	return false
}
