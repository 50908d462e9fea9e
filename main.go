package main

import "octotrack/internal/cli"

func main() {
	cli.Execute()
}
