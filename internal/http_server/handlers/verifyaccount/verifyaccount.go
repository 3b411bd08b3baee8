package verifyaccount

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

type Response struct {
	resp.Response
	Message string `json:"message"`
}

type AccountVerifier interface {
	Verify(ctx context.Context, accountID, code string) (bool, error)
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	verifier AccountVerifier,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.verifyaccount.New"

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

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		ok, err := verifier.Verify(ctx, req.UserID, req.Code)
		if err != nil {
			log.Error("failed to verify account", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		if !ok {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("invalid verification code or user id"))

			return
		}

		log.Info("account verified", slog.String("id", req.UserID))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Message:  "account successfully verified",
		})
	}
}
