package main

import "github.com/project-kessel/leakguard/internal/cli"

func main() {
	cli.Execute()
}
