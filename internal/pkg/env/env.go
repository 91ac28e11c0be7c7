package env

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func SetupEnvFile() {
	// Look for .env file in project root
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/subsync to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			// Successfully loaded env file
			return
		}
	}

	// If we get here, no env file was found
	panic("No .env file found in any of the expected locations")
}

// Require panics unless every named variable is set. Used at startup for
// configuration the service cannot run without (Stripe keys, base URL).
func Require(keys ...string) {
	var missing []string
	for _, key := range keys {
		if GetEnv(key, "") == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		panic(fmt.Sprintf("missing required environment variables: %v", missing))
	}
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
