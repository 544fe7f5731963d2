package main

import "github.com/KaramelBytes/earlywarn-cli/cmd"

func main() {
	cmd.Execute()
}
