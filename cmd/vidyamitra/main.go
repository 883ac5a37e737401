package main

import "github.com/enftaurus/vidyamitra/internal/cli"

func main() {
	cli.Execute()
}
