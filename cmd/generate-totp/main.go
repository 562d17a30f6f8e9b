package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Operator helper: with ADMIN_TOTP_SECRET set it prints the current code for
// the admin login endpoint; without it, it mints a fresh secret to configure.
func main() {
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "Sponsor Backend Admin",
			AccountName: "admin@sponsor-backend",
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("New TOTP Secret: %s\n", key.Secret())
		fmt.Printf("Provisioning URL: %s\n", key.URL())
		fmt.Printf("Save the secret to ADMIN_TOTP_SECRET and rerun to print codes.\n")
		return
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds\n")
}
