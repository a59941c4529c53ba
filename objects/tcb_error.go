package objects

import (
	"fmt"

	"github.com/miekg/pkcs11"
)

// TcbError is an error which carries the return value reported to the
// caller of the module.
type TcbError struct {
	Who         string
	Description string
	Code        pkcs11.Error
}

func NewError(who, description string, code pkcs11.Error) *TcbError {
	return &TcbError{
		Who:         who,
		Description: description,
		Code:        code,
	}
}

func (err TcbError) Error() string {
	return fmt.Sprintf("%s: %s", err.Who, err.Description)
}
