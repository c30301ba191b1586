package main

import "doccatalog/internal/cli"

func main() {
	cli.Execute()
}
