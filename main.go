package main

import "github.com/kget-downloader/kget/cmd"

func main() {
	cmd.Execute()
}
