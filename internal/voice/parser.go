package voice

import "strings"

// Command is one parsed utterance. The parser is a pure function over text,
// decoupled from any speech-recognition transport.
type Command interface {
	isCommand()
}

// SelectChoice picks an answer by zero-based index.
type SelectChoice struct {
	Index int
}

// Submit confirms the current selection.
type Submit struct{}

// Skip advances past the current question without answering.
type Skip struct{}

// Unrecognized is anything outside the grammar; it carries the original
// utterance so the caller can prompt for clarification.
type Unrecognized struct {
	Utterance string
}

func (SelectChoice) isCommand() {}
func (Submit) isCommand()       {}
func (Skip) isCommand()         {}
func (Unrecognized) isCommand() {}

var leadIns = map[string]bool{
	"option": true,
	"answer": true,
	"choice": true,
}

var submitWords = map[string]bool{
	"submit":  true,
	"next":    true,
	"confirm": true,
	"go":      true,
}

// Parse normalizes an utterance (trim, lowercase) and matches it against the
// fixed grammar: an optional lead-in word followed by a letter a-d, the bare
// letter, a submit word, or "skip".
func Parse(utterance string) Command {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(utterance)))
	switch len(fields) {
	case 1:
		word := fields[0]
		if submitWords[word] {
			return Submit{}
		}
		if word == "skip" {
			return Skip{}
		}
		if index, ok := choiceLetter(word); ok {
			return SelectChoice{Index: index}
		}
	case 2:
		if leadIns[fields[0]] {
			if index, ok := choiceLetter(fields[1]); ok {
				return SelectChoice{Index: index}
			}
		}
	}
	return Unrecognized{Utterance: utterance}
}

func choiceLetter(word string) (int, bool) {
	if len(word) != 1 {
		return 0, false
	}
	c := word[0]
	if c < 'a' || c > 'd' {
		return 0, false
	}
	return int(c - 'a'), true
}
