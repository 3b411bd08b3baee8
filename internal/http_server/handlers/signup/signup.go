package signup

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username"`
	Pass     string `json:"password"`
}

type Response struct {
	resp.Response
	ID         string `json:"id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	IsVerified bool   `json:"is_verified"`
}

type AccountRegistrar interface {
	Register(ctx context.Context, email, username, password string) (models.Account, error)
}

// New builds the signup handler. requireCredentials distinguishes the
// admin shape (email, username, password) from the staff shape (email
// only, credentials generated server-side).
func New(
	log *slog.Logger,
	validate *validator.Validate,
	registrar AccountRegistrar,
	requireCredentials bool,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.signup.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("failed to decode request"))

			return
		}

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		if requireCredentials && (req.Username == "" || req.Pass == "") {
			log.Error("missing username or password")

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("username and password are required"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		acc, err := registrar.Register(ctx, req.Email, req.Username, req.Pass)
		if err != nil {
			if errors.Is(err, storage.ErrAccountExists) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("email already registered"))

				return
			}

			log.Error("failed to register account", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		log.Info("account registered", slog.String("id", acc.ID))

		render.JSON(w, r, Response{
			Response:   resp.OK(),
			ID:         acc.ID,
			Email:      acc.Email,
			Username:   acc.Username,
			IsVerified: acc.Verified,
		})
	}
}
