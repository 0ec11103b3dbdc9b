package main

import (
	"errors"
	"os"

	"github.com/sandeepkv93/credential-manager-go/internal/tools/common"
	tool "github.com/sandeepkv93/credential-manager-go/internal/tools/migrate"
)

func main() {
	if err := tool.NewRootCommand().Execute(); err != nil {
		var exitErr *common.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}
