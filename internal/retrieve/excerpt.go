package retrieve

import "strings"

// Excerpts splits text into overlapping word windows. Long chunk texts make
// unreliable search strings when locating them on a rendered page; short
// windows match far more often. Text at or under one window is returned
// whole. overlap must be smaller than window.
func Excerpts(text string, window, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if window <= 0 || len(words) <= window {
		return []string{strings.Join(words, " ")}
	}
	if overlap < 0 || overlap >= window {
		overlap = 0
	}

	stride := window - overlap
	var excerpts []string
	for start := 0; start < len(words); start += stride {
		end := start + window
		if end >= len(words) {
			// Final window hugs the tail so no words are dropped.
			excerpts = append(excerpts, strings.Join(words[len(words)-window:], " "))
			break
		}
		excerpts = append(excerpts, strings.Join(words[start:end], " "))
	}
	return excerpts
}
