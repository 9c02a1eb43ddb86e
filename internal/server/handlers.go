package server

import (
	"encoding/json"
	"errors"
	"net/http"

	nigori "github.com/asweigart123/nigori"
	"github.com/asweigart123/nigori/internal/auth"
	"github.com/asweigart123/nigori/pkg/types"
)

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) respond(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Warnf("failed to write response: %v", err)
	}
}

// authenticate verifies a request's auth block and resolves the user.
// Writes the failure response itself and returns false when verification
// fails.
func (s *Server) authenticate(w http.ResponseWriter, a Auth, operation string, fields ...[]byte) (types.User, bool) {
	if err := s.verifier.VerifyRequest(a.PublicHash, a.Nonce, a.Signature, operation, fields...); err != nil {
		s.unauthorized(w, operation, err)
		return types.User{}, false
	}
	user, err := s.db.GetUser(a.PublicHash)
	if err != nil {
		s.unauthorized(w, operation, err)
		return types.User{}, false
	}
	return user, true
}

func (s *Server) unauthorized(w http.ResponseWriter, operation string, err error) {
	s.log.Warnf("%s: authentication failed: %v", operation, err)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.verifier.VerifyWithKey(req.PublicKey, req.Nonce, req.Signature, "register", req.PublicKey); err != nil {
		s.unauthorized(w, "register", err)
		return
	}

	publicHash := auth.PublicHash(req.PublicKey)
	if !s.db.AddUser(req.PublicKey, publicHash) {
		http.Error(w, "already registered", http.StatusConflict)
		return
	}
	s.respond(w, RegisterResponse{PublicHash: publicHash})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req UnregisterRequest
	if !decode(w, r, &req) {
		return
	}

	user, ok := s.authenticate(w, req.Auth, "unregister")
	if !ok {
		return
	}
	if !s.db.DeleteUser(user) {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	var req AuthenticateRequest
	if !decode(w, r, &req) {
		return
	}

	if _, ok := s.authenticate(w, req.Auth, "authenticate"); !ok {
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	var req PutRequest
	if !decode(w, r, &req) {
		return
	}

	user, ok := s.authenticate(w, req.Auth, "put", req.Index, req.Revision, req.Value)
	if !ok {
		return
	}
	if !s.db.PutRecord(user, req.Index, req.Revision, req.Value) {
		// revision already present, or the write failed
		http.Error(w, "revision already exists", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req GetRequest
	if !decode(w, r, &req) {
		return
	}

	user, ok := s.authenticate(w, req.Auth, "get", req.Index, req.Revision)
	if !ok {
		return
	}

	if len(req.Revision) > 0 {
		rv, err := s.db.GetRevision(user, req.Index, req.Revision)
		if err != nil {
			s.storageFailure(w, "get", err)
			return
		}
		if rv == nil {
			http.Error(w, "revision not found", http.StatusNotFound)
			return
		}
		s.respond(w, GetResponse{Revisions: []RevValueMessage{{Revision: rv.Revision, Value: rv.Value}}})
		return
	}

	rvs, err := s.db.GetRecord(user, req.Index)
	if err != nil {
		s.storageFailure(w, "get", err)
		return
	}
	if rvs == nil {
		http.Error(w, "index not found", http.StatusNotFound)
		return
	}
	out := make([]RevValueMessage, 0, len(rvs))
	for _, rv := range rvs {
		out = append(out, RevValueMessage{Revision: rv.Revision, Value: rv.Value})
	}
	s.respond(w, GetResponse{Revisions: out})
}

func (s *Server) handleGetIndices(w http.ResponseWriter, r *http.Request) {
	var req GetIndicesRequest
	if !decode(w, r, &req) {
		return
	}

	user, ok := s.authenticate(w, req.Auth, "get-indices")
	if !ok {
		return
	}
	indices, err := s.db.GetIndices(user)
	if err != nil {
		s.storageFailure(w, "get-indices", err)
		return
	}
	s.respond(w, GetIndicesResponse{Indices: indices})
}

func (s *Server) handleGetRevisions(w http.ResponseWriter, r *http.Request) {
	var req GetRevisionsRequest
	if !decode(w, r, &req) {
		return
	}

	user, ok := s.authenticate(w, req.Auth, "get-revisions", req.Index)
	if !ok {
		return
	}
	revisions, err := s.db.GetRevisions(user, req.Index)
	if err != nil {
		s.storageFailure(w, "get-revisions", err)
		return
	}
	if revisions == nil {
		http.Error(w, "index not found", http.StatusNotFound)
		return
	}
	s.respond(w, GetRevisionsResponse{Revisions: revisions})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decode(w, r, &req) {
		return
	}

	user, ok := s.authenticate(w, req.Auth, "delete", req.Index)
	if !ok {
		return
	}
	if !s.db.DeleteRecord(user, req.Index) {
		http.Error(w, "index not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) storageFailure(w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, nigori.ErrUserNotFound) {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	s.log.Errorf("%s: storage failure: %v", operation, err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
