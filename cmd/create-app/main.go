// Command create-app provisions a tenant application: it creates the system
// collections of the application's database and issues its first secret.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "create-app: %v\n", err)
		os.Exit(1)
	}
}
