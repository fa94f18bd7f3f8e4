package main

import "github.com/Malixamran-01/MissMinutes/internal/cli"

var version = "dev"

func main() {
	cli.Execute(version)
}
