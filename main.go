package main

import "github.com/ZargorNET/sponsormanager/cmd"

func main() {
	cmd.Execute()
}
