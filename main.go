// The main package for the article-crawler executable.
package main

import (
	"github.com/JakeFAU/article-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
