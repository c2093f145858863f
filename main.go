package main

import "ceb-outage-alerts/internal/cli"

func main() {
	cli.Execute()
}
