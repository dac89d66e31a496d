package pipeline

// Dedupe keeps the first Article for every GUID, preserving order.
//
// The same teaser can show up on two listing pages when new articles push
// it across a page boundary between requests. Input is page order, so the
// copy from the lower page number wins:
//
//	in:  [A(p1) B(p1) C(p2) A(p2)]
//	out: [A(p1) B(p1) C(p2)]
//
// A nil input returns nil; the input slice is never modified.
func Dedupe(in []Article) []Article {
	if in == nil {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]Article, 0, len(in))
	for _, a := range in {
		if seen[a.GUID()] {
			continue
		}
		seen[a.GUID()] = true
		out = append(out, a)
	}
	return out
}
