package api

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/warden/pkg/httputil"
	"github.com/platinummonkey/warden/pkg/rbac"
)

// maxAvatarBytes caps avatar uploads at 1 MiB.
const maxAvatarBytes = 1 << 20

func (s *Server) registerAvatarRoutes(router *mux.Router) {
	router.HandleFunc("/me/avatar", s.putAvatar).Methods("PUT")
	router.HandleFunc("/me/avatar", s.getAvatar).Methods("GET")
	router.HandleFunc("/me/avatar", s.deleteAvatar).Methods("DELETE")
}

func avatarKey(accountID int64) string {
	return fmt.Sprintf("avatars/%d", accountID)
}

func (s *Server) putAvatar(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Guard.Authorize(r.Context(), "")
	if err != nil {
		httputil.WriteError(w, rbac.HTTPStatus(err), err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	body := http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	defer body.Close()

	key := avatarKey(snap.AccountID)
	if err := s.deps.Blobs.Put(r.Context(), key, contentType, body); err != nil {
		s.logger.WithError(err).Error("failed to store avatar")
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to store avatar")
		return
	}
	if err := s.deps.Accounts.SetAvatarKey(r.Context(), snap.AccountID, key); err != nil {
		httputil.WriteError(w, rbac.HTTPStatus(err), err)
		return
	}
	httputil.WriteNoContent(w)
}

func (s *Server) getAvatar(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Guard.Authorize(r.Context(), "")
	if err != nil {
		httputil.WriteError(w, rbac.HTTPStatus(err), err)
		return
	}

	account, err := s.deps.Accounts.GetByID(r.Context(), snap.AccountID)
	if err != nil {
		httputil.WriteError(w, rbac.HTTPStatus(err), err)
		return
	}
	if account.AvatarKey == "" {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "no avatar set")
		return
	}

	content, contentType, err := s.deps.Blobs.Get(r.Context(), account.AvatarKey)
	if err != nil {
		s.logger.WithError(err).WithField("key", account.AvatarKey).Error("failed to read avatar")
		httputil.WriteErrorMessage(w, http.StatusNotFound, "no avatar set")
		return
	}
	defer content.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		s.logger.WithError(err).Debug("avatar stream interrupted")
	}
}

func (s *Server) deleteAvatar(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Guard.Authorize(r.Context(), "")
	if err != nil {
		httputil.WriteError(w, rbac.HTTPStatus(err), err)
		return
	}

	if err := s.deps.Blobs.Delete(r.Context(), avatarKey(snap.AccountID)); err != nil {
		s.logger.WithError(err).Error("failed to delete avatar blob")
	}
	if err := s.deps.Accounts.SetAvatarKey(r.Context(), snap.AccountID, ""); err != nil {
		httputil.WriteError(w, rbac.HTTPStatus(err), err)
		return
	}
	httputil.WriteNoContent(w)
}
