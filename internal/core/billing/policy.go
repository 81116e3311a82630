package billing

import "unicode/utf8"

// Policy is the single token -> credit pricing rule used everywhere a
// message is charged.
type Policy struct {
	CharsPerToken        int
	SystemOverheadTokens int
	MinChargeTokens      int
	TokensPerCredit      int
	MinChargeCredits     int64
}

// DefaultPolicy returns the pricing used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		CharsPerToken:        4,
		SystemOverheadTokens: 20,
		MinChargeTokens:      50,
		TokensPerCredit:      1000,
		MinChargeCredits:     1,
	}
}

// normalized fills zero or negative fields from DefaultPolicy.
func (p Policy) normalized() Policy {
	def := DefaultPolicy()
	if p.CharsPerToken <= 0 {
		p.CharsPerToken = def.CharsPerToken
	}
	if p.SystemOverheadTokens < 0 {
		p.SystemOverheadTokens = 0
	}
	if p.MinChargeTokens < 0 {
		p.MinChargeTokens = 0
	}
	if p.TokensPerCredit <= 0 {
		p.TokensPerCredit = def.TokensPerCredit
	}
	if p.MinChargeCredits < 0 {
		p.MinChargeCredits = 0
	}
	return p
}

// Tokens returns the billable token count for a response:
// max(provided, ceil(chars/CharsPerToken)+overhead, MinChargeTokens).
// Characters are counted as runes so multi-byte text is not over-charged.
func (p Policy) Tokens(provided int, text string) int {
	p = p.normalized()

	chars := utf8.RuneCountInString(text)
	estimated := ceilDiv(chars, p.CharsPerToken) + p.SystemOverheadTokens

	tokens := provided
	if estimated > tokens {
		tokens = estimated
	}
	if p.MinChargeTokens > tokens {
		tokens = p.MinChargeTokens
	}
	return tokens
}

// Credits converts tokens to whole credits, always rounding up and never
// going below MinChargeCredits.
func (p Policy) Credits(tokens int) int64 {
	p = p.normalized()
	if tokens < 0 {
		tokens = 0
	}
	credits := int64(ceilDiv(tokens, p.TokensPerCredit))
	if credits < p.MinChargeCredits {
		credits = p.MinChargeCredits
	}
	return credits
}

// Quote is the priced result for one outbound message.
type Quote struct {
	Tokens  int
	Credits int64
}

// Quote prices a response text with the backend-reported token count.
func (p Policy) Quote(provided int, text string) Quote {
	tokens := p.Tokens(provided, text)
	return Quote{Tokens: tokens, Credits: p.Credits(tokens)}
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
