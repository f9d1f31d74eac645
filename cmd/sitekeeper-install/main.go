package main

import "github.com/sitekeeper/sitekeeper-setup/cmd/sitekeeper-install/cmd"

func main() {
	cmd.Execute()
}
