package web

import (
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/Rubix982/django-photo-edit/internal/pkg/httpx"
	"github.com/Rubix982/django-photo-edit/internal/pkg/middleware"
	"github.com/Rubix982/django-photo-edit/internal/pkg/serr"
	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/service"
)

func (a *API) handleHome(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	data := pageData{
		Title:     "Home",
		UserID:    middleware.UserIDFromContext(r.Context()),
		Flashes:   sess.PopFlashes(),
		Providers: a.providers,
	}

	a.saveSession(w, r, sess)
	if err := a.pages.render(w, http.StatusOK, "homepage.html", data); err != nil {
		httpx.HandleErr(w, r, err)
	}
}

type loginResponse struct {
	UserID      int64  `json:"user_id"`
	Created     bool   `json:"created"`
	AccessToken string `json:"access_token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := a.readLoginForm(r)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	if err = validate.Struct(form); err != nil {
		httpx.HandleErr(w, r, serr.BadRequest(err, "%s", formError(err)))
		return
	}

	provider := form.Provider
	if provider == "" {
		provider = a.provider
	}

	sess := session.FromContext(r.Context())
	res, err := a.auth.Login(r.Context(), sess, service.Profile{
		Provider:    provider,
		ExternalID:  form.ID,
		FirstName:   form.FirstName,
		LastName:    form.LastName,
		Email:       form.Email,
		Picture:     form.Picture,
		AccessToken: form.AccessToken,
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	if !a.saveSession(w, r, sess) {
		httpx.HandleErr(w, r, errors.New("save session"))
		return
	}

	err = httpx.WriteJSON(w, http.StatusOK, loginResponse{
		UserID:      res.User.ID,
		Created:     res.Created,
		AccessToken: res.AccessToken,
	})
	if err != nil {
		slog.Error("failed to write login response", "error", err)
	}
}

func (a *API) readLoginForm(r *http.Request) (loginForm, error) {
	var form loginForm

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		if err := httpx.ReadJSON(r, &form); err != nil {
			return loginForm{}, serr.BadRequest(err, "invalid request body")
		}
		return form, nil
	}

	if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return loginForm{}, serr.BadRequest(err, "invalid form")
	}

	form.ID = r.FormValue("id")
	form.FirstName = r.FormValue("first_name")
	form.LastName = r.FormValue("last_name")
	form.Email = r.FormValue("email")
	form.Picture = r.FormValue("picture[data][url]")
	form.AccessToken = r.FormValue("access_token")
	form.Provider = r.FormValue("provider")
	return form, nil
}

func (a *API) handleSignout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := a.auth.Logout(r.Context(), sess); err != nil {
		slog.Error("failed to sign out", "error", err, "remote_addr", r.RemoteAddr)
	}

	a.sessions.ExpireCookie(w)
	http.Redirect(w, r, homePath, http.StatusFound)
}

func (a *API) handlePhotos(w http.ResponseWriter, r *http.Request) {
	a.renderPhotos(w, r, http.StatusOK, "")
}

func (a *API) renderPhotos(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	uid := middleware.UserIDFromContext(r.Context())
	photos, err := a.photos.List(r.Context(), uid)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	sess := session.FromContext(r.Context())
	data := pageData{
		Title:   "Photos",
		UserID:  uid,
		Flashes: sess.PopFlashes(),
		Error:   errMsg,
		Photos:  photos,
	}

	a.saveSession(w, r, sess)
	if err = a.pages.render(w, status, "photos.html", data); err != nil {
		httpx.HandleErr(w, r, err)
	}
}

func (a *API) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUpload+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			a.renderPhotos(w, r, http.StatusBadRequest, fmt.Sprintf("image is larger than %d bytes", a.maxUpload))
			return
		}
		a.renderPhotos(w, r, http.StatusBadRequest, "invalid form")
		return
	}

	form := uploadForm{Title: r.FormValue("title")}
	if err := validate.Struct(form); err != nil {
		a.renderPhotos(w, r, http.StatusBadRequest, formError(err))
		return
	}

	f, hdr, err := r.FormFile("image")
	if err != nil {
		a.renderPhotos(w, r, http.StatusBadRequest, "image is required")
		return
	}
	defer f.Close()

	_, err = a.photos.Upload(r.Context(), session.FromContext(r.Context()), service.UploadRequest{
		UserID:   middleware.UserIDFromContext(r.Context()),
		Title:    form.Title,
		FileName: hdr.Filename,
		Image:    f,
	})
	if err != nil {
		var se *serr.ServiceError
		if errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError {
			a.renderPhotos(w, r, se.StatusCode, se.Msg)
			return
		}
		httpx.HandleErr(w, r, err)
		return
	}

	a.renderPhotos(w, r, http.StatusOK, "")
}

func (a *API) editRequest(r *http.Request) (service.EditRequest, error) {
	id, err := httpx.PathID(r, "id")
	if err != nil {
		return service.EditRequest{}, err
	}

	return service.EditRequest{
		UserID:  middleware.UserIDFromContext(r.Context()),
		PhotoID: id,
		Effect:  r.PathValue("effect"),
	}, nil
}

func (a *API) handleEdit(w http.ResponseWriter, r *http.Request) {
	req, err := a.editRequest(r)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	page, err := a.photos.Edit(r.Context(), req)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	sess := session.FromContext(r.Context())
	data := pageData{
		Title:   page.Photo.Title,
		UserID:  req.UserID,
		Flashes: sess.PopFlashes(),
		Edit:    page,
	}

	a.saveSession(w, r, sess)
	if err = a.pages.render(w, http.StatusOK, "edit.html", data); err != nil {
		httpx.HandleErr(w, r, err)
	}
}

func (a *API) handleEditImage(w http.ResponseWriter, r *http.Request) {
	req, err := a.editRequest(r)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	out, err := a.photos.Render(r.Context(), req)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err = w.Write(out.Data); err != nil {
		slog.Warn("failed to write image", "error", err)
	}
}

func (a *API) handleSaveEdit(w http.ResponseWriter, r *http.Request) {
	req, err := a.editRequest(r)
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	sess := session.FromContext(r.Context())
	if _, err = a.photos.SaveEdit(r.Context(), sess, req); err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	a.redirect(w, r, sess, photosPath)
}

// handleDelete always sends the user back to the photo list; the outcome
// travels as a flash message. Public ids may contain slashes.
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	id, err := httpx.PathID(r, "id")
	if err != nil {
		sess.AddFlash(session.LevelError, "Photo not found.")
		a.redirect(w, r, sess, photosPath)
		return
	}

	err = a.photos.Delete(r.Context(), sess, service.DeleteRequest{
		UserID:   middleware.UserIDFromContext(r.Context()),
		PhotoID:  id,
		PublicID: strings.TrimSuffix(r.PathValue("public_id"), "/"),
	})
	if err != nil {
		slog.Warn("photo not deleted",
			"error", err,
			"photo_id", id,
			"url", r.URL.String(),
			"remote_addr", r.RemoteAddr,
		)
	}

	a.redirect(w, r, sess, photosPath)
}

func (a *API) handleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())

	url, err := a.auth.LoginURL(sess, r.PathValue("provider"))
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	if !a.saveSession(w, r, sess) {
		httpx.HandleErr(w, r, errors.New("save session"))
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *API) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		httpx.HandleErr(w, r, serr.Unauthorized(nil, "login cancelled").With("reason", strings.TrimSpace(reason)))
		return
	}

	sess := session.FromContext(r.Context())
	_, err := a.auth.Callback(r.Context(), sess, service.CallbackRequest{
		Provider: r.PathValue("provider"),
		Code:     q.Get("code"),
		State:    q.Get("state"),
	})
	if err != nil {
		httpx.HandleErr(w, r, err)
		return
	}

	a.redirect(w, r, sess, photosPath)
}
