// The main package for the newsletter-crawler executable.
package main

import (
	"github.com/JakeFAU/newsletter-crawler/cmd"
)

func main() {
	cmd.Execute()
}
