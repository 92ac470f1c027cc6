package crypto

import "golang.org/x/crypto/bcrypt"

// HashKey hashes a function key using bcrypt.
func HashKey(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
}

// CompareKey compares a plaintext key to a hashed secret.
func CompareKey(hash []byte, plain string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(plain))
}

// MatchAny reports whether plain matches any of the provided hashes.
func MatchAny(hashes []string, plain string) bool {
	if plain == "" {
		return false
	}
	for _, h := range hashes {
		if CompareKey([]byte(h), plain) == nil {
			return true
		}
	}
	return false
}
