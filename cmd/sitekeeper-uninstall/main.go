package main

import "github.com/sitekeeper/sitekeeper-setup/cmd/sitekeeper-uninstall/cmd"

func main() {
	cmd.Execute()
}
