package main

import "github.com/tacrodose/pkengine/internal/cli"

func main() {
	cli.Execute()
}
