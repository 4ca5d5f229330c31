package main

import "github.com/mawsim/catalog/cmd/catalog/cmd"

func main() {
	cmd.Execute()
}
