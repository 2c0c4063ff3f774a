package api

import (
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hmontero/waypoint-server/service/chat"
	"github.com/hmontero/waypoint-server/service/post"
	"github.com/hmontero/waypoint-server/service/user"
)

type APIServer struct {
	address string
	db      *gorm.DB
	logger  *zap.SugaredLogger
}

func NewAPIServer(address string, db *gorm.DB, logger *zap.SugaredLogger) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
		logger:  logger,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api").Subrouter()

	userHandler := user.NewHandler(s.db, s.logger)
	userHandler.RegisterRoutes(subrouter)

	chatHandler := chat.NewHandler(s.db, s.logger)
	chatHandler.RegisterRoutes(subrouter)

	postHandler := post.NewHandler(s.db, s.logger)
	postHandler.RegisterRoutes(subrouter)

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PATCH", "PUT", "DELETE"}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)

	s.logger.Infof("server running at %s", s.address)
	return http.ListenAndServe(s.address, handlers.CombinedLoggingHandler(os.Stdout, cors(router)))
}
