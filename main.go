package main

import (
	"sonexa/cmd"
)

func main() {
	cmd.Execute()
}
