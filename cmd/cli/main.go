package main

import "github.com/mchmarny/sbmi/pkg/cli"

func main() {
	cli.Execute()
}
