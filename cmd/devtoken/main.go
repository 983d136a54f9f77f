// Command devtoken prints a customer access token signed with JWT_SECRET so
// the booking endpoints can be exercised against a local server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/cinema-seat-locking/internal/utils"
)

func main() {
	userID := flag.Uint64("user", 1, "user id placed in the sub claim")
	role := flag.String("role", "CUSTOMER", "role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is not set")
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(secret, *userID, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
}
