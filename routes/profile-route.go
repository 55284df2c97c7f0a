package routes

import (
	"net/http"

	"accounts-service/config"
	"accounts-service/handlers"
	"accounts-service/middleware"

	"github.com/gorilla/mux"
)

const apiPrefix = "/api/accounts"

func SetupRoutes(cfg config.Config, profileHandler *handlers.ProfileHandler, healthHandler *handlers.HealthHandler) *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix(apiPrefix).Subrouter()
	api.Use(middleware.AuthMiddleware(cfg))
	api.Handle("/profile/view/", middleware.ErrorHandler(profileHandler.ViewHandler)).Methods(http.MethodGet)
	api.Handle("/profile/edit/", middleware.ErrorHandler(profileHandler.EditHandler)).Methods(http.MethodPut)
	api.Handle("/profiles/", middleware.ErrorHandler(profileHandler.CreateHandler)).Methods(http.MethodPost)

	router.Handle("/health", middleware.ErrorHandler(healthHandler.CheckHandler)).Methods(http.MethodGet)

	return router
}
