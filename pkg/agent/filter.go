package agent

// ChunkFilter strips protocol scaffolding from a streamed model reply so
// that only user-visible reasoning text reaches subscribers.
//
// The model answers either in plain prose or with the JSON action object
// (possibly fenced). The filter decides which on the first visible
// character: prose passes through untouched; for JSON only the streamed
// value of the "thoughts" field is re-emitted, unescaped, with everything
// around it dropped. One filter instance serves one LLM call.
type ChunkFilter struct {
	state       filterState
	skipLine    bool // inside a fence marker line
	needlePos   int
	valueEscape bool
}

type filterState int

const (
	filterDeciding filterState = iota
	filterPassthrough
	filterSeekKey
	filterSeekColon
	filterSeekQuote
	filterValue
	filterDone
)

// thoughtsNeedle is the key match target, quotes included.
const thoughtsNeedle = `"thoughts"`

// NewChunkFilter creates a filter for one call.
func NewChunkFilter() *ChunkFilter {
	return &ChunkFilter{}
}

// Feed consumes one raw chunk and returns the user-visible portion, which
// may be empty.
func (f *ChunkFilter) Feed(chunk string) string {
	out := make([]byte, 0, len(chunk))

	for i := 0; i < len(chunk); i++ {
		c := chunk[i]

		if f.skipLine {
			if c == '\n' {
				f.skipLine = false
			}
			continue
		}

		switch f.state {
		case filterDeciding:
			switch {
			case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			case c == '`':
				// Fence marker; drop the rest of the line (```json).
				f.skipLine = true
			case c == '{':
				f.state = filterSeekKey
			default:
				f.state = filterPassthrough
				out = append(out, c)
			}

		case filterPassthrough:
			out = append(out, c)

		case filterSeekKey:
			if c == thoughtsNeedle[f.needlePos] {
				f.needlePos++
				if f.needlePos == len(thoughtsNeedle) {
					f.state = filterSeekColon
					f.needlePos = 0
				}
			} else if c == thoughtsNeedle[0] {
				f.needlePos = 1
			} else {
				f.needlePos = 0
			}

		case filterSeekColon:
			if c == ':' {
				f.state = filterSeekQuote
			} else if c != ' ' && c != '\t' && c != '\n' && c != '\r' {
				// Matched inside some other token; resume the search.
				f.state = filterSeekKey
			}

		case filterSeekQuote:
			switch c {
			case '"':
				f.state = filterValue
			case ' ', '\t', '\n', '\r':
			default:
				f.state = filterSeekKey
			}

		case filterValue:
			if f.valueEscape {
				out = append(out, unescapeByte(c))
				f.valueEscape = false
				break
			}
			switch c {
			case '\\':
				f.valueEscape = true
			case '"':
				f.state = filterDone
			default:
				out = append(out, c)
			}

		case filterDone:
			// Remainder is protocol scaffolding.
		}
	}

	return string(out)
}

func unescapeByte(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}
