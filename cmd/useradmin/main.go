// Command useradmin provisions accounts and role assignments directly
// against the database, bypassing the HTTP surface. Intended for bootstrap
// and operator use.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"reserv.org/internal/auth"
	"reserv.org/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn         = flag.String("dsn", os.Getenv("RESERV_PG_DSN"), "PostgreSQL DSN")
		userID      = flag.String("user", "", "user id")
		displayName = flag.String("name", "", "display name (create-user)")
		password    = flag.String("password", "", "password (create-user)")
		role        = flag.String("role", "", "role name (assign-role)")
		status      = flag.String("status", auth.UserStatusActive, "account status (create-user, set-status)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or RESERV_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: useradmin [create-user|assign-role|set-status]")
	}
	if *userID == "" {
		log.Fatal("-user is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	svc, err := auth.NewService(store)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	if err := svc.EnsureBuiltins(ctx); err != nil {
		log.Fatalf("ensure builtins: %v", err)
	}

	switch flag.Arg(0) {
	case "create-user":
		if *password == "" {
			log.Fatal("-password is required")
		}
		user, err := svc.CreateUser(ctx, *userID, *displayName, *password, *status)
		if err != nil {
			log.Fatalf("create user: %v", err)
		}
		fmt.Printf("created %s (%s)\n", user.ID, user.Status)
	case "assign-role":
		if *role == "" {
			log.Fatal("-role is required")
		}
		if err := svc.AssignRole(ctx, *userID, *role); err != nil {
			log.Fatalf("assign role: %v", err)
		}
		fmt.Printf("assigned %s to %s\n", *role, *userID)
	case "set-status":
		if err := svc.SetUserStatus(ctx, *userID, *status); err != nil {
			log.Fatalf("set status: %v", err)
		}
		fmt.Printf("status of %s set to %s\n", *userID, *status)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
}
