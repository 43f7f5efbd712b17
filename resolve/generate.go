package resolve

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hazyhaar/chatcast/dom"
)

// generatedAttrs are tried in order after the id.
var generatedAttrs = []string{"data-testid", "aria-label", "type", "name", "placeholder", "role"}

// volatileClassPrefixes mark state classes and CSS-in-JS output.
var volatileClassPrefixes = []string{"is-", "has-", "css-", "sc-", "jsx-", "svelte-", "ng-", "emotion-"}

var identRe = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// Generate builds a selector for el and reports whether it matches exactly
// one element of doc. Candidates are tried from most to least specific: id,
// descriptive attributes, stable classes, parent-relative position, tag.
// When none is unique the first candidate that matches el is returned.
func Generate(doc dom.Document, el dom.Element) (string, bool) {
	cands := selectorCandidates(el)
	fallback := ""
	for _, sel := range cands {
		els, err := doc.QueryAll(sel)
		if err != nil {
			continue
		}
		if len(els) == 1 && els[0].SameAs(el) {
			return sel, true
		}
		if fallback == "" && contains(els, el) {
			fallback = sel
		}
	}
	if fallback == "" {
		fallback = el.TagName()
	}
	return fallback, false
}

func selectorCandidates(el dom.Element) []string {
	tag := el.TagName()
	var out []string

	if id, ok := el.Attr("id"); ok && id != "" {
		out = append(out, idSelector(tag, id))
	}
	for _, name := range generatedAttrs {
		if v, ok := el.Attr(name); ok && v != "" {
			out = append(out, fmt.Sprintf("%s[%s=%s]", tag, name, cssString(v)))
		}
	}
	if classes := stableClasses(el); len(classes) > 0 {
		out = append(out, tag+"."+strings.Join(classes, "."))
	}
	if p := el.Parent(); p != nil {
		out = append(out, fmt.Sprintf("%s > %s:nth-child(%d)", parentSelector(p), tag, el.SiblingIndex()))
	}
	return append(out, tag)
}

func idSelector(tag, id string) string {
	if identRe.MatchString(id) {
		return "#" + id
	}
	return fmt.Sprintf("%s[id=%s]", tag, cssString(id))
}

func parentSelector(p dom.Element) string {
	if id, ok := p.Attr("id"); ok && identRe.MatchString(id) {
		return "#" + id
	}
	return p.TagName()
}

// stableClasses returns at most two classes that look hand-written.
func stableClasses(el dom.Element) []string {
	raw, _ := el.Attr("class")
	var out []string
	for _, c := range strings.Fields(raw) {
		if !stableClass(c) {
			continue
		}
		out = append(out, c)
		if len(out) == 2 {
			break
		}
	}
	return out
}

func stableClass(c string) bool {
	if !identRe.MatchString(c) || len(c) > 32 {
		return false
	}
	for _, p := range volatileClassPrefixes {
		if strings.HasPrefix(c, p) {
			return false
		}
	}
	digits := 0
	for _, r := range c {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits >= 3 {
		return false
	}
	return !hashedSegment(c)
}

// hashedSegment reports a trailing segment such as "_a8Xk2" or "-3fQz".
func hashedSegment(c string) bool {
	i := strings.LastIndexAny(c, "_-")
	if i < 0 {
		return false
	}
	seg := c[i+1:]
	if len(seg) < 4 {
		return false
	}
	var digit, upper, lower bool
	for _, r := range seg {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		}
	}
	return digit && (upper || lower) || upper && lower && len(seg) >= 5
}

func cssString(v string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\a `)
	return `"` + r.Replace(v) + `"`
}
