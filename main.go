package main

import "larkclaw/cmd"

func main() {
	cmd.Execute()
}
