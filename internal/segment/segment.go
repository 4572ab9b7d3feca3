// Package segment splits manuscript text into sentence-bounded chunks
// sized for individual speech synthesis requests.
package segment

import "strings"

// Split normalizes whitespace in text and packs its sentences into chunks
// of at most maxChars characters. Sentences are never split: a single
// sentence longer than maxChars becomes its own oversized chunk, trading a
// strict size guarantee for sentence integrity. Empty input yields nil.
func Split(text string, maxChars int) []string {
	normalized := strings.Join(strings.Fields(text), " ")
	if normalized == "" {
		return nil
	}

	sentences := splitSentences(normalized)

	var chunks []string
	var cur strings.Builder
	for _, sentence := range sentences {
		if cur.Len() == 0 {
			cur.WriteString(sentence)
			continue
		}
		if cur.Len()+1+len(sentence) <= maxChars {
			cur.WriteByte(' ')
			cur.WriteString(sentence)
			continue
		}
		chunks = append(chunks, cur.String())
		cur.Reset()
		cur.WriteString(sentence)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}

	return chunks
}

// splitSentences cuts normalized text at sentence boundaries. A boundary is
// any of ".", "!", "?" immediately followed by whitespace; the terminator
// stays attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		if isTerminator(text[i]) && text[i+1] == ' ' {
			sentences = append(sentences, text[start:i+1])
			start = i + 2 // skip the single separating space
			i++
		}
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isTerminator(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}
