// servicesctl is the operator CLI for the services network.
package main

import "github.com/nerrad567/services-client/internal/cli"

func main() {
	cli.Execute()
}
