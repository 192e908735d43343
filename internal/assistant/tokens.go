package assistant

import (
	"github.com/pkoukk/tiktoken-go"

	"assistant/internal/domain"
)

// TokenCounter measures prompt text against the context budget.
type TokenCounter func(text string) int

// NewTiktokenCounter counts tokens with the cl100k_base encoding, which
// approximates most current chat models closely enough for budgeting.
func NewTiktokenCounter() (TokenCounter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, domain.Wrap(domain.KindInvalidConfiguration, "loading token encoding failed", err)
	}
	return func(text string) int {
		return len(enc.Encode(text, nil, nil))
	}, nil
}
