package main

import "qualflat/cmd/qualflat/commands"

func main() {
	commands.Execute()
}
