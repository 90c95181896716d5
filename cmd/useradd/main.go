// useradd creates an account from the command line, mainly the first admin:
//
//	go run ./cmd/useradd -username admin -password secret1 -role admin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/enesyuzak/locat-web-tracker/config"
	"github.com/enesyuzak/locat-web-tracker/db"
	"github.com/enesyuzak/locat-web-tracker/internal/models"
	"github.com/enesyuzak/locat-web-tracker/internal/repositories"
	authService "github.com/enesyuzak/locat-web-tracker/internal/services/auth"
)

func main() {
	username := flag.String("username", "", "Login name (required)")
	password := flag.String("password", "", "Password, at least 6 characters (required)")
	email := flag.String("email", "", "Email for password resets")
	displayName := flag.String("name", "", "Name shown on the dashboard")
	role := flag.String("role", models.RoleViewer, "admin, viewer or tracked")
	flag.Parse()

	if err := run(*username, *password, *email, *displayName, *role); err != nil {
		fmt.Fprintln(os.Stderr, "useradd:", err)
		os.Exit(1)
	}
}

func run(username, password, email, displayName, role string) error {
	if username == "" {
		return errors.New("-username is required")
	}
	if !models.ValidRole(role) {
		return fmt.Errorf("unknown role %q", role)
	}
	if err := authService.ValidateNewPassword(password, password); err != nil {
		return err
	}

	cfg, err := config.NewConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	database, err := db.InitDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	hash, err := authService.HashPassword(password)
	if err != nil {
		return err
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         role,
	}
	if err := repositories.NewUserRepository(database).Create(ctx, user); err != nil {
		return err
	}
	fmt.Printf("created %s user %s (%s)\n", user.Role, user.Username, user.ID)
	return nil
}
