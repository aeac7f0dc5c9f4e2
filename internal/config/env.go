package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix namespaces the station's environment variables.
const EnvPrefix = "JUMP_"

// LoadEnv loads .env style files into the environment without overriding
// variables that are already set. Missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Env returns JUMP_<key>, or fallback when unset or blank.
func Env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(EnvPrefix + key)); v != "" {
		return v
	}
	return fallback
}

// EnvBool parses JUMP_<key> as a bool, or returns fallback.
func EnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(Env(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
