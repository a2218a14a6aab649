package main

import "github.com/natserract/amocrm/cmd/amocrm/cli"

func main() {
	cli.Execute()
}
