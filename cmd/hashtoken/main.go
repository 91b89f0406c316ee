// Command hashtoken prints the bcrypt hash of an admin token for use as
// ADMIN_TOKEN_HASH.
//
//	go run ./cmd/hashtoken <token>
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gigpay-bend/utils"
)

var errUsage = errors.New("usage: hashtoken <token>")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func run(args []string, w io.Writer) error {
	if len(args) != 1 || args[0] == "" {
		return errUsage
	}
	hash, err := utils.HashToken(args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}
