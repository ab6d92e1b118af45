package main

import (
	"anonchat/backend/internal/config"
	"anonchat/backend/internal/logging"
	"anonchat/backend/internal/messaging"
	"anonchat/backend/internal/storage"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  reconcile             rebuild every chat summary from the message log
  reset-presence        mark every user offline
  user <id|name|email>  print a user's public profile and presence`

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	sqlDB, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	storageSvc := storage.NewStorageService(db, nil) // No redis needed for admin CLI
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "reconcile":
		r := messaging.NewReconciler(storageSvc, logging.NewWithWriter(os.Stderr, "info", "text"), time.Minute)
		n, err := r.ReconcileAll(ctx)
		if err != nil {
			log.Fatalf("Error reconciling chats (%d done): %v", n, err)
		}
		fmt.Printf("Reconciled %d chats.\n", n)
	case "reset-presence":
		n, err := storageSvc.ResetPresence(ctx, time.Now().UTC())
		if err != nil {
			log.Fatalf("Error resetting presence: %v", err)
		}
		fmt.Printf("Marked %d users offline.\n", n)
	case "user":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin user <id|username|email>")
			os.Exit(1)
		}
		if err := printUser(ctx, storageSvc, os.Args[2]); err != nil {
			log.Fatalf("Error loading user: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		fmt.Println(usage)
		os.Exit(1)
	}
}

func printUser(ctx context.Context, s storage.Storage, ref string) error {
	user, err := s.GetUserByID(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		user, err = s.FindUserByIdentifier(ctx, ref)
	}
	if err != nil {
		return err
	}

	chats, err := s.GetChatsForUser(ctx, user.ID)
	if err != nil {
		return err
	}

	fmt.Printf("id:        %s\n", user.ID)
	fmt.Printf("username:  %s\n", user.Username)
	fmt.Printf("email:     %s\n", user.Email)
	fmt.Printf("avatar:    %s\n", user.Avatar)
	fmt.Printf("online:    %t\n", user.IsOnline)
	fmt.Printf("last seen: %s\n", user.LastSeen.Format(time.RFC3339))
	fmt.Printf("chats:     %d\n", len(chats))
	return nil
}
