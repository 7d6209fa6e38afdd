package httpapi

import (
	"net/http"

	"github.com/dotapulse/matches-service/internal/platform/logging"
)

func NewRouter(handler *Handler, logger *logging.Logger, corsAllowedOrigins []string) http.Handler {
	if logger == nil {
		logger = logging.Default()
	}

	mux := http.NewServeMux()
	registerRoutes(mux, handler)

	return RequestTracing(RequestLogging(logger, CORS(corsAllowedOrigins, recoverPanic(logger, mux))))
}

func registerRoutes(mux *http.ServeMux, handler *Handler) {
	mux.HandleFunc("GET /healthz", handler.Healthz)

	mux.HandleFunc("GET /v1/matches", handler.ListMatches)
	mux.HandleFunc("GET /v1/matches/{matchID}/recipients", handler.ListMatchRecipients)
	mux.HandleFunc("GET /v1/matches/{matchID}/streams/{channelLogin}/thumbnail", handler.GetStreamPreview)
	mux.HandleFunc("GET /v1/version", handler.GetVersion)
	mux.HandleFunc("GET /v1/teams", handler.ListTeams)
	mux.HandleFunc("GET /v1/tournaments", handler.ListTournaments)

	mux.HandleFunc("GET /v1/subscribers/{subscriberID}/subscriptions", handler.ListSubscriptions)
	mux.HandleFunc("POST /v1/subscribers/{subscriberID}/subscriptions", handler.AddSubscription)
	mux.HandleFunc("DELETE /v1/subscribers/{subscriberID}/subscriptions", handler.ClearSubscriptions)
	mux.HandleFunc("DELETE /v1/subscribers/{subscriberID}/subscriptions/{kind}", handler.RemoveSubscription)

	mux.HandleFunc("GET /v1/stats", handler.GetStats)
}

func recoverPanic(logger *logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := startSpan(r.Context(), "httpapi.recoverPanic")
		defer span.End()

		defer func() {
			if rec := recover(); rec != nil {
				logger.ErrorContext(ctx, "panic recovered", "panic", rec)
				writeInternalError(ctx, w)
			}
		}()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
