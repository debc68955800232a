package main

import "github.com/forPelevin/scenecut/internal/cli"

func main() {
	cli.Main()
}
