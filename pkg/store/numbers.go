package store

import (
	"fmt"
	"math/rand/v2"

	"jababank/models"
)

// NewAccountNumber builds "<type code>-<user id, 7 digits>-<random digit>",
// e.g. 10-0000042-7 for a checking account of user 42.
func NewAccountNumber(typ models.AccountType, userID uint) string {
	return fmt.Sprintf("%s-%07d-%d", typ.Code(), userID, rand.IntN(10))
}
