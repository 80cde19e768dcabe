package main

import "github.com/vietddude/gramo/internal/cli"

func main() {
	cli.Execute()
}
