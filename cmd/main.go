package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hmontero/waypoint-server/cmd/api"
	"github.com/hmontero/waypoint-server/cmd/models"
	"github.com/hmontero/waypoint-server/db"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Logger initialization error: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "migrate":
			runMigrations(sugar)
			return
		case "clear-db":
			runDatabaseClear(sugar)
			return
		default:
			sugar.Fatalf("Unknown command: %s", os.Args[1])
		}
	}

	startServer(sugar)
}

func runMigrations(logger *zap.SugaredLogger) {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		logger.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB, logger)
	logger.Info("Connected to the database for migrations")

	if err := performMigrations(DB, logger); err != nil {
		logger.Fatalf("Migration error: %v", err)
	}
	logger.Info("Migrations completed successfully")
}

func performMigrations(DB *gorm.DB, logger *zap.SugaredLogger) error {
	// The nearby search relies on these extensions.
	for _, ext := range []string{"cube", "earthdistance"} {
		if err := DB.Exec("CREATE EXTENSION IF NOT EXISTS " + ext).Error; err != nil {
			return fmt.Errorf("error creating %s extension: %w", ext, err)
		}
	}

	migrations := map[interface{}]string{
		&models.User{}:    "User",
		&models.Chat{}:    "Chat",
		&models.Post{}:    "Post",
		&models.Comment{}: "Comment",
	}

	logger.Info("Starting database migrations...")
	for model, name := range migrations {
		logger.Infof("Migrating %s table...", name)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		logger.Infof("%s migration successful", name)
	}

	return nil
}

func startServer(logger *zap.SugaredLogger) {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		logger.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB, logger)
	logger.Info("Connected to the database")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	port := os.Getenv("SERVER_PORT")
	if port == "" {
		port = "8080"
	}
	server := api.NewAPIServer(":"+port, DB, logger)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Server error: %v", err)
		}
	}()
	logger.Infof("Server running on port %s", port)

	<-quit
	logger.Info("Shutting down server...")
}

func runDatabaseClear(logger *zap.SugaredLogger) {
	DB, err := db.NewPSQLStorage()
	if err != nil {
		logger.Fatalf("Database initialization error: %v", err)
	}
	defer closeDB(DB, logger)

	var confirmation string
	fmt.Print("Are you sure you want to clear the database? (yes/no): ")
	fmt.Scanln(&confirmation)
	if confirmation != "yes" {
		logger.Info("Database clearing cancelled.")
		return
	}

	tables := []interface{}{
		&models.Comment{},
		&models.Post{},
		&models.Chat{},
		&models.User{},
	}

	logger.Info("Dropping tables...")
	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			logger.Warnf("Warning dropping table %T: %v", table, err)
		} else {
			logger.Infof("Table %T dropped", table)
		}
	}

	logger.Info("Database cleared successfully")
}

func closeDB(DB *gorm.DB, logger *zap.SugaredLogger) {
	sqlDB, err := DB.DB()
	if err == nil {
		sqlDB.Close()
	}
	logger.Info("Database connection closed")
}
