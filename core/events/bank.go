package events

const TypeQuoteDeposited = "bank.quote.deposited"

// QuoteDeposited is emitted when an account is credited with quote asset that
// can later back a reclaim's compensation.
type QuoteDeposited struct {
	Account [32]byte
	Amount  uint64
	Balance uint64
}

func (QuoteDeposited) EventType() string { return TypeQuoteDeposited }

func (e QuoteDeposited) Record() *Record {
	return &Record{
		Type: TypeQuoteDeposited,
		Attributes: map[string]string{
			"account": hexID(e.Account),
			"amount":  uintToString(e.Amount),
			"balance": uintToString(e.Balance),
		},
	}
}
