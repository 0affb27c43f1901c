package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// pollVotes returns the vote records registered for the poll, ordered by
// nullifier
// GET /polls/{pollId}/votes
func (a *API) pollVotes(w http.ResponseWriter, r *http.Request) {
	pollID, err := strconv.ParseUint(chi.URLParam(r, PollURLParam), 10, 64)
	if err != nil {
		ErrMalformedPollID.WithErr(err).Write(w)
		return
	}
	votes, err := a.storage.PollVotes(pollID)
	if err != nil {
		ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &PollVotes{PollID: pollID, Votes: votes})
}
