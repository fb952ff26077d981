package sync

import (
	"sort"
	"strings"
)

// YesVote is the decision text that approves a delete. Any other text is a
// rejection.
const YesVote = "YES"

// DeleteAction tracks the votes on one delete request. It isn't safe for
// concurrent use; the coordinator guards it with its own lock.
type DeleteAction struct {
	Requester string
	Filename  string

	votes     int
	unanimous bool

	// voters maps every client asked to vote to whether it has voted.
	voters map[string]bool
}

// NewDeleteAction starts a tally with no votes, asking each of `voters`.
func NewDeleteAction(requester, filename string, voters []string) *DeleteAction {
	action := &DeleteAction{
		Requester: requester,
		Filename:  filename,
		unanimous: true,
		voters:    map[string]bool{},
	}
	for _, voter := range voters {
		if voter != requester {
			action.voters[voter] = false
		}
	}
	return action
}

// ReceiveDecision records one vote. Votes aren't deduplicated by sender.
func (action *DeleteAction) ReceiveDecision(yes bool) {
	action.votes++
	action.unanimous = action.unanimous && yes
}

// ReceiveVote records the decision of `voter`. It returns false, and
// records nothing, if `voter` wasn't asked or has already voted.
func (action *DeleteAction) ReceiveVote(voter string, yes bool) bool {
	voted, ok := action.voters[voter]
	if !ok || voted {
		return false
	}

	action.voters[voter] = true
	action.ReceiveDecision(yes)
	return true
}

// RemoveVoter stops waiting for `voter`. A vote it already cast still
// counts.
func (action *DeleteAction) RemoveVoter(voter string) {
	if voted, ok := action.voters[voter]; ok && !voted {
		delete(action.voters, voter)
	}
}

// Complete returns whether exactly `voters` votes have been received.
func (action *DeleteAction) Complete(voters int) bool {
	return action.votes == voters
}

// Decided returns whether every voter that's still being waited on has
// voted.
func (action *DeleteAction) Decided() bool {
	return action.Complete(len(action.voters))
}

// Pending returns the voters that haven't voted yet, sorted.
func (action *DeleteAction) Pending() (pending []string) {
	for voter, voted := range action.voters {
		if !voted {
			pending = append(pending, voter)
		}
	}
	sort.Strings(pending)
	return pending
}

// Unanimous returns whether every vote so far was yes.
func (action *DeleteAction) Unanimous() bool {
	return action.unanimous
}

// Votes returns the number of votes received.
func (action *DeleteAction) Votes() int {
	return action.votes
}

// IsYes parses the decision text of a VOTE.
func IsYes(decision string) bool {
	return strings.EqualFold(decision, YesVote)
}
