package services

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is compared against when no account matches, so unknown
// emails cost the same bcrypt work as wrong passwords.
var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("no-such-account")
	if err != nil {
		panic(err)
	}
	return hash
})

// HashPassword returns a salted bcrypt hash with the cost embedded.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches hash. A malformed hash
// never matches.
func VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
