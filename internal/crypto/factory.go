package crypto

import "fmt"

// Factory builds the Crypto strategy for a given user. Per-user factories
// let a shared master password derive distinct keys per user.
type Factory func(userID string) (Crypto, error)

// NoPasswordFactory returns a factory producing NoEncryption for every user.
func NoPasswordFactory() Factory {
	return func(string) (Crypto, error) {
		return NoEncryption{}, nil
	}
}

// SinglePasswordFactory returns a factory deriving a per-user SingleKey
// strategy from one master password.
func SinglePasswordFactory(password string) Factory {
	return func(userID string) (Crypto, error) {
		c, err := NewSingleKey(DeriveKey(password, userID))
		if err != nil {
			return nil, fmt.Errorf("derive crypto for user %s: %w", userID, err)
		}
		return c, nil
	}
}

// FactoryFromPasswords picks the factory matching a configured password
// set: no primary password means no encryption, and any fallbacks chain
// retired passwords behind the primary.
func FactoryFromPasswords(primary string, fallbacks ...string) Factory {
	if primary == "" {
		return NoPasswordFactory()
	}
	if len(fallbacks) == 0 {
		return SinglePasswordFactory(primary)
	}
	return FallbackPasswordFactory(append([]string{primary}, fallbacks...)...)
}

// FallbackPasswordFactory returns a factory that encrypts with the first
// password and can still decrypt content written under any of the others.
// An empty trailing password stands for content written unencrypted.
func FallbackPasswordFactory(passwords ...string) Factory {
	return func(userID string) (Crypto, error) {
		cryptos := make([]Crypto, 0, len(passwords))
		for _, pw := range passwords {
			if pw == "" {
				cryptos = append(cryptos, NoEncryption{})
				continue
			}
			c, err := NewSingleKey(DeriveKey(pw, userID))
			if err != nil {
				return nil, fmt.Errorf("derive crypto for user %s: %w", userID, err)
			}
			cryptos = append(cryptos, c)
		}
		return NewFallback(cryptos...)
	}
}
