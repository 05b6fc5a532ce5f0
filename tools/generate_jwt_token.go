// tools/generate_jwt_token.go
// This is a utility to generate JWT tokens for testing the authentication middleware
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims matches the claims structure used in the middleware
type JWTClaims struct {
	jwt.RegisteredClaims
	Permissions struct {
		AdSets []string `json:"adsets,omitempty"`
	} `json:"permissions,omitempty"`
}

func main() {
	secretKey := os.Getenv("JWT_SECRET_KEY")
	if secretKey == "" {
		fmt.Println("Error: JWT_SECRET_KEY environment variable not set")
		fmt.Println("Usage: JWT_SECRET_KEY=your-secret go run generate_jwt_token.go [readonly]")
		os.Exit(1)
	}

	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "adset-agent",
			Subject:   "principal_test",
		},
	}

	if len(os.Args) > 1 && os.Args[1] == "readonly" {
		// get_adsets and get_adset_details only
		claims.Permissions.AdSets = []string{"read"}
		fmt.Println("Generating token with READ-ONLY permissions")
	} else {
		claims.Permissions.AdSets = []string{"read", "write"}
		fmt.Println("Generating token with FULL permissions")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		fmt.Printf("Error signing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGenerated JWT Token:")
	fmt.Println("====================")
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Println("Token Details:")
	fmt.Println("- Algorithm: HS256")
	fmt.Println("- Subject:  ", claims.Subject)
	fmt.Println("- Expires:  ", claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println("- Permissions:")
	fmt.Println("  - AdSets:  ", claims.Permissions.AdSets)
	fmt.Println()
	fmt.Println("Test commands:")
	fmt.Println("1. Test with JWT (Bearer token):")
	fmt.Printf("   curl -X POST -H \"Authorization: Bearer %s\" -d '{\"account_id\":\"act_123\"}' http://localhost:8081/get_adsets\n", tokenString)
	fmt.Println()
	fmt.Println("2. Test with API Key:")
	fmt.Println("   curl -X POST -H \"X-API-Key: $ADSET_API_KEY\" -d '{\"adset_id\":\"123\"}' http://localhost:8081/get_adset_details")
	fmt.Println()
	fmt.Println("3. Propose an update (requires write):")
	fmt.Printf("   curl -X POST -H \"Authorization: Bearer %s\" -d '{\"adset_id\":\"123\",\"kwargs\":{\"status\":\"PAUSED\"}}' http://localhost:8081/update_adset\n", tokenString)
}
