package mining

import "fmt"

// Rejection codes
const (
	CodeMiningDisabled    = "mining_disabled"
	CodeInvalidAddress    = "invalid_address"
	CodeInvalidNonce      = "invalid_nonce"
	CodeSolutionRejected  = "solution_rejected"
	CodeSolutionDuplicate = "solution_duplicate"
	CodeSolutionIncorrect = "solution_incorrect"
)

var rejectionMessages = map[string]string{
	CodeMiningDisabled:    "Mining disabled",
	CodeInvalidAddress:    "Invalid parameter address",
	CodeInvalidNonce:      "Invalid parameter nonce",
	CodeSolutionRejected:  "Solution rejected",
	CodeSolutionDuplicate: "Solution rejected: duplicate",
}

// RejectionError is a submission refused for a reason the miner can act on
type RejectionError struct {
	Code      string
	Parameter string
}

func reject(code string) *RejectionError {
	e := &RejectionError{Code: code}
	switch code {
	case CodeInvalidAddress:
		e.Parameter = "address"
	case CodeInvalidNonce:
		e.Parameter = "nonce"
	}
	return e
}

// Error implements the error interface
func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message())
}

// Message is a human readable description of the code
func (e *RejectionError) Message() string {
	if msg, ok := rejectionMessages[e.Code]; ok {
		return msg
	}
	return e.Code
}
