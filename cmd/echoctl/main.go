package main

import "github.com/yungbote/echoworld-backend/internal/cli"

func main() {
	cli.Execute()
}
