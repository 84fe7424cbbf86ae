package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// envFiles are read in order; earlier files win because godotenv.Load never
// overrides a variable that is already set.
var envFiles = []string{".env.local", ".env"}

// LoadEnvFiles loads .env.local and .env from dir (the working directory when
// empty) into the process environment. Variables already set are kept, so the
// real environment always wins. Missing files are skipped.
func LoadEnvFiles(dir string) error {
	var files []string
	for _, name := range envFiles {
		fp := filepath.Join(dir, name)
		if _, err := os.Stat(fp); err != nil {
			continue
		}
		files = append(files, fp)
	}
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}
