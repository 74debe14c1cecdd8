package tickers

// Symbols tracks the symbol listing attached to a ticker
type Symbols struct {
	Base
}

// NewSymbols creates the symbols record type
func NewSymbols() *Symbols {
	return &Symbols{}
}

func (s *Symbols) Name() string {
	return "symbols"
}

func (s *Symbols) Endpoint() string {
	return "https://backend.otcmarkets.com/otcapi/company/profile/%s/symbols"
}

func (s *Symbols) FilterKeys() []string {
	return []string{"verifiedDate"}
}
