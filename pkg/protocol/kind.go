package protocol

import "strings"

// Kind is the command carried by a Message. The set of kinds is closed.
type Kind int

const (
	// Login authenticates the client with a unique username.
	Login Kind = iota
	// OK acknowledges that the last request was accepted.
	OK
	// Push asks to upload a file.
	Push
	// Pull asks to download a file.
	Pull
	// Invalid tells a client that another client changed a file.
	Invalid
	// Abort rejects a request.
	Abort
	// Open advertises the data channel for a push or pull.
	Open
	// Close reports that a transfer finished.
	Close
	// Delete asks for a file to be deleted everywhere.
	Delete
	// QueryDelete asks a client to vote on a pending delete.
	QueryDelete
	// Vote carries a client's delete decision.
	Vote
	// Remove tells clients that a delete was confirmed.
	Remove
	// Restore tells clients that a delete was rejected.
	Restore
	// End closes the session.
	End
)

var kindNames = [...]string{
	Login:       "LOGIN",
	OK:          "OK",
	Push:        "PUSH",
	Pull:        "PULL",
	Invalid:     "INVALID",
	Abort:       "ABORT",
	Open:        "OPEN",
	Close:       "CLOSE",
	Delete:      "DELETE",
	QueryDelete: "QUERYDELETE",
	Vote:        "VOTE",
	Remove:      "REMOVE",
	Restore:     "RESTORE",
	End:         "END",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "UNKNOWN"
	}
	return kindNames[k]
}

// IsNotification returns whether the server sends this kind unprompted.
// Notifications are never correlated with a request.
func (k Kind) IsNotification() bool {
	switch k {
	case Invalid, QueryDelete, Remove, Restore:
		return true
	}
	return false
}

// IsTransfer returns whether the kind starts a data channel transfer, and so
// is answered by OPEN and then CLOSE.
func (k Kind) IsTransfer() bool {
	return k == Push || k == Pull
}

// ParseKind looks up the kind named by `s`, ignoring case.
func ParseKind(s string) (Kind, error) {
	upper := strings.ToUpper(s)
	for k, name := range kindNames {
		if name == upper {
			return Kind(k), nil
		}
	}
	return 0, UnknownCommandError{Command: s}
}
