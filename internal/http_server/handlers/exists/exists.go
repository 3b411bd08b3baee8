package exists

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	ValidAccount bool `json:"valid_account"`
}

type AccountChecker interface {
	Exists(ctx context.Context, accountID, email string) (bool, error)
}

// New builds the existence-check handler. The user_id query parameter
// takes priority over email; with neither present the answer is false.
func New(
	log *slog.Logger,
	checker AccountChecker,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.exists.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		userID := r.URL.Query().Get("user_id")
		email := r.URL.Query().Get("email")

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		found, err := checker.Exists(ctx, userID, email)
		if err != nil {
			log.Error("failed to check account", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response:     resp.OK(),
			ValidAccount: found,
		})
	}
}
