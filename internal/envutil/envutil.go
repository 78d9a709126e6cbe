package envutil

import (
	"os"
	"strings"
)

// IsDev reports whether VAULTLINK_ENV selects development mode. In development
// cookies are issued without the Secure attribute so plain-http localhost works.
func IsDev() bool {
	env := strings.ToLower(os.Getenv("VAULTLINK_ENV"))
	return env == "development" || env == "dev"
}
