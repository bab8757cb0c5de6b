package account

import "time"

// Account is a registered depositor identity. Address is the identifier the
// vault and the token know the depositor by.
type Account struct {
	Address      string
	PINHash      []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Address string
	PIN     string
}
