package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(ExitError)
	}
}
