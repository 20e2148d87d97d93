package main

import (
    "github.com/amirimatin/go-console/pkg/cli"
)

func main() {
    cli.Execute()
}
