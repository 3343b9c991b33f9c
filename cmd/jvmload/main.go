// jvmload decodes and checks Java class files the way a JVM class loader
// would, and prints a summary of each class it loads.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	getenv, err := envWithDotEnv(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := run(os.Args[1:], getenv, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// envWithDotEnv returns a lookup over the process environment that falls
// back to the variables in path. A missing file is not an error.
func envWithDotEnv(path string) (func(string) string, error) {
	dotenv, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return os.Getenv, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	}, nil
}
