package cache

import "fmt"

// TierError is a fault inside one tier. Manager logs these and continues.
type TierError struct {
	Tier string
	Op   string
	Err  error
}

func (e *TierError) Error() string {
	return fmt.Sprintf("cache: %s %s: %v", e.Tier, e.Op, e.Err)
}

func (e *TierError) Unwrap() error {
	return e.Err
}

func tierErr(tier, op string, err error) error {
	if err == nil {
		return nil
	}
	return &TierError{Tier: tier, Op: op, Err: err}
}
