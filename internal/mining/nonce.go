package mining

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Nonce is the miner-chosen part of the hash input. Miners may send it as
// a JSON string or number; numbers are turned into their decimal text.
type Nonce string

// UnmarshalJSON implements json.Unmarshaler. Numbers too large for a
// float64 become "0". Other non-string values become the empty nonce,
// which submission rejects.
func (n *Nonce) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		*n = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = Nonce(s)
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		*n = numberNonce(string(data))
	default:
		*n = ""
	}
	return nil
}

func numberNonce(literal string) Nonce {
	f, err := strconv.ParseFloat(literal, 64)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return "0"
	}
	if err != nil {
		return ""
	}
	if math.Abs(f) < 1e21 {
		return Nonce(strconv.FormatFloat(f, 'f', -1, 64))
	}
	return Nonce(strconv.FormatFloat(f, 'g', -1, 64))
}
