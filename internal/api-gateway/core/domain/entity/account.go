package entity

// Account is a ledger account address in 0x-prefixed hex form.
type Account string

func (a Account) String() string { return string(a) }
