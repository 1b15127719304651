package exflow

import "strings"

// NarrativeBlock is the justification or mitigation text for one subject of a
// multi-server or multi-finding request
type NarrativeBlock struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

const (
	narrativeSeparator    = "\n\n"
	narrativeServerPrefix = "Server: "
)

// EncodeNarrative packs per-subject blocks into a single text field. Standard
// exceptions head each block with "Server: <name>", vulnerability exceptions
// with "<finding name>:". Blocks are separated by a blank line.
func EncodeNarrative(kind ExceptionType, blocks []NarrativeBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		var header string
		if kind == ExceptionStandard {
			header = narrativeServerPrefix + b.Subject
		} else {
			header = b.Subject + ":"
		}
		parts = append(parts, header+"\n"+b.Text)
	}
	return strings.Join(parts, narrativeSeparator)
}

// DecodeNarrative recovers the blocks written by EncodeNarrative. Text that
// does not follow the block convention comes back as a single block with an
// empty subject.
func DecodeNarrative(text string) []NarrativeBlock {
	if text == "" {
		return nil
	}

	var blocks []NarrativeBlock
	for _, chunk := range strings.Split(text, narrativeSeparator) {
		header, body, _ := strings.Cut(chunk, "\n")
		subject, ok := narrativeSubject(header)
		if !ok {
			// a blank line inside a body; glue it back onto the previous block
			if len(blocks) > 0 {
				blocks[len(blocks)-1].Text += narrativeSeparator + chunk
				continue
			}
			blocks = append(blocks, NarrativeBlock{Text: chunk})
			continue
		}
		blocks = append(blocks, NarrativeBlock{Subject: subject, Text: body})
	}
	return blocks
}

func narrativeSubject(header string) (string, bool) {
	if strings.HasPrefix(header, narrativeServerPrefix) {
		return strings.TrimPrefix(header, narrativeServerPrefix), true
	}
	if strings.HasSuffix(header, ":") && len(header) > 1 {
		return strings.TrimSuffix(header, ":"), true
	}
	return "", false
}
