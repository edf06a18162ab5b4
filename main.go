package main

import "rsidesk/internal/cli"

func main() {
	cli.Run()
}
