package resolve

import (
	"strings"

	"github.com/hazyhaar/chatcast/dom"
)

// nearest climbs at most maxDepth ancestors of anchor and returns the
// visible, enabled, non-denied clickable closest to it. On equal distance the
// first one found wins, which favours the innermost ancestor.
func (r *Resolver) nearest(anchor dom.Element) (dom.Element, float64, bool) {
	ar := anchor.Rect()
	var (
		best     dom.Element
		bestDist float64
		seen     []dom.Element
	)
	node := anchor
	for depth := 0; depth < r.maxDepth; depth++ {
		node = node.Parent()
		if node == nil {
			break
		}
		els, err := node.QueryAll(r.clickable)
		if err != nil {
			r.logger.Debug("resolve: proximity query failed", "error", err)
			continue
		}
		for _, el := range els {
			if el.SameAs(anchor) || contains(seen, el) {
				continue
			}
			seen = append(seen, el)
			if !dom.Visible(el) || el.Disabled() || r.denied(el) {
				continue
			}
			d := dom.Distance(ar, el.Rect())
			if best == nil || d < bestDist {
				best, bestDist = el, d
			}
		}
	}
	return best, bestDist, best != nil
}

func (r *Resolver) denied(el dom.Element) bool {
	return containsAny(strings.ToLower(dom.Label(el)), r.deny)
}

func contains(list []dom.Element, el dom.Element) bool {
	for _, x := range list {
		if x.SameAs(el) {
			return true
		}
	}
	return false
}
