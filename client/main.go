package main

import (
	"os"

	"github.com/BeaudanBrown/GlobalProtect-openconnect/client/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
