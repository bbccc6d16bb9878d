package protocol

import "strings"

// Parse recognizes a terminated line by fixed prefix. Lines matching no
// prefix yield KindUnknown and are ignored by the processor.
func Parse(line string) Message {
	switch {
	case strings.HasPrefix(line, PrefixPing):
		return Message{Kind: KindPing}
	case strings.HasPrefix(line, PrefixPong):
		return Message{Kind: KindPong}
	case strings.HasPrefix(line, PrefixPattern):
		m := Message{Kind: KindPattern}
		if len(line) > len(PrefixPattern) {
			m.Digit = line[len(PrefixPattern)]
		}
		return m
	}
	return Message{Kind: KindUnknown}
}
