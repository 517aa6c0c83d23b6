package lexer

import (
	perrors "github.com/puglite/puglite/pkg/puglite/errors"
)

// StripComments removes unbuffered comments (//-) and their nested text
// blocks from a token stream. When buffered is set, // comments are removed
// as well.
func StripComments(toks []Token, buffered bool) ([]Token, error) {
	out := make([]Token, 0, len(toks))
	inComment := false
	inPipeless := false

	for _, tok := range toks {
		switch tok.Type {
		case COMMENT:
			if inComment {
				return nil, unexpected(tok)
			}
			inComment = !tok.Buffer || buffered
			if inComment {
				continue
			}
		case START_PIPELESS_TEXT:
			if inComment {
				if inPipeless {
					return nil, unexpected(tok)
				}
				inPipeless = true
				continue
			}
		case END_PIPELESS_TEXT:
			if inComment {
				if !inPipeless {
					return nil, unexpected(tok)
				}
				inPipeless = false
				inComment = false
				continue
			}
		default:
			if inPipeless {
				continue
			}
			inComment = false
		}
		out = append(out, tok)
	}
	return out, nil
}

func unexpected(tok Token) error {
	return perrors.NewAt("PARSE-0001", tok.Filename, tok.Line, tok.Column, map[string]any{
		"Token": tok.Describe(),
	})
}
