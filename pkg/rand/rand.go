package rand

import (
	"crypto/rand"
	"math/big"

	"github.com/sirupsen/logrus"
)

const passwordChars = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

// Password returns a generated initial password of the requested length.
// The character set avoids lookalikes (0/O, 1/l/I) since these passwords
// are handed over out-of-band.
func Password(length int) string {
	result := make([]byte, length)
	max := big.NewInt(int64(len(passwordChars)))
	for i := range result {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			logrus.Fatal("unable to generate random bytes")
		}
		result[i] = passwordChars[n.Int64()]
	}
	return string(result)
}
