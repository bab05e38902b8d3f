package main

import "github.com/RyanBlaney/sonido-critique/cmd"

func main() {
	cmd.Execute()
}
