// Package main provides the fedctl CLI entrypoint.
package main

func main() {
	Execute()
}
