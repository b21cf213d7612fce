package main

import "github.com/KaramelBytes/vizagent/cmd"

func main() {
	cmd.Execute()
}
