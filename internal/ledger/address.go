package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strconv"
)

// AddressPrefix is the leading character of every v2 address
const AddressPrefix = "k"

var addressRe = regexp.MustCompile(`^(?:k[a-z0-9]{9}|[a-f0-9]{10})$`)

// ValidAddress reports whether s is a v1 (hex) or v2 (k-prefixed) address
func ValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// Sha256Hex returns the lower-case hex SHA-256 of s
func Sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func doubleSha256Hex(s string) string {
	return Sha256Hex(Sha256Hex(s))
}

// MakeV2Address derives the v2 address owned by privatekey
func MakeV2Address(privatekey, prefix string) string {
	var chars [9]string

	hash := doubleSha256Hex(privatekey)
	for i := range chars {
		chars[i] = hash[:2]
		hash = doubleSha256Hex(hash)
	}

	out := prefix
	for i := 0; i < len(chars); {
		n, _ := strconv.ParseUint(hash[2*i:2*i+2], 16, 8)
		index := n % 9

		if chars[index] == "" {
			hash = Sha256Hex(hash)
			continue
		}

		b, _ := strconv.ParseUint(chars[index], 16, 8)
		out += string(hexToBase36(int(b)))
		chars[index] = ""
		i++
	}

	return out
}

func hexToBase36(n int) byte {
	b := 48 + n/7
	switch {
	case b+39 > 122:
		return 'e'
	case b > 57:
		return byte(b + 39)
	default:
		return byte(b)
	}
}

// PrivateKeyHash is the value stored in the privatekey column of address
func PrivateKeyHash(address, privatekey string) string {
	return Sha256Hex(address + privatekey)
}
