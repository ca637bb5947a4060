package main

import "fixture-crawler/cmd/crawl-fixtures/commands"

func main() {
	commands.Execute()
}
