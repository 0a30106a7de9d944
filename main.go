// Command headline-scraper runs the scrape API, the worker pool, and the
// queue maintenance commands.
package main

import "github.com/JakeFAU/headline-scraper/cmd"

func main() {
	cmd.Execute()
}
