package main

import "github.com/jvbeek/pricewatch/internal/cli"

func main() {
	cli.Execute()
}
