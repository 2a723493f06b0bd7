// Command apitoken prints a bearer token for the splitbill API.
//
//	API_TOKEN_SECRET=... apitoken --subject=phone --ttl=720h
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/joho/godotenv"

	"github.com/mmynk/splitbill/internal/auth"
)

type options struct {
	Secret  string        `conf:"required,env:API_TOKEN_SECRET,noprint"`
	Subject string        `conf:"default:cli,flag:subject"`
	TTL     time.Duration `conf:"default:720h,flag:ttl"`
}

func main() {
	var opts options
	_ = godotenv.Load()
	if help, err := conf.Parse("", &opts); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return
		}
		fmt.Fprintf(os.Stderr, "apitoken: %v\n", err)
		os.Exit(1)
	}

	token, err := auth.NewJWTManager(opts.Secret, opts.TTL).Generate(opts.Subject, auth.ScopeAPI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "apitoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
