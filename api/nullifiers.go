package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// nullifiersRoot returns the root of the nullifier registry
// GET /nullifiers/root
func (a *API) nullifiersRoot(w http.ResponseWriter, r *http.Request) {
	root, err := a.storage.NullifierRoot()
	if err != nil {
		ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	count, err := a.storage.CountNullifiers()
	if err != nil {
		ErrStorageFailure.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &NullifiersRoot{Root: root, Count: count})
}

// nullifier returns the vote record registered for the nullifier
// GET /nullifiers/{nullifier}
func (a *API) nullifier(w http.ResponseWriter, r *http.Request) {
	vote, err := a.storage.VoteRecord(chi.URLParam(r, NullifierURLParam))
	if err != nil {
		storageError(err, ErrNullifierNotFound).Write(w)
		return
	}
	httpWriteJSON(w, vote)
}

// nullifierProof returns the registry proof of the nullifier, which proves
// its absence if it is not registered
// GET /nullifiers/{nullifier}/proof
func (a *API) nullifierProof(w http.ResponseWriter, r *http.Request) {
	proof, err := a.storage.NullifierProof(chi.URLParam(r, NullifierURLParam))
	if err != nil {
		storageError(err, ErrNullifierNotFound).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}
