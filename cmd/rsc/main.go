// Command rsc drives a legged robot over a serial link: it hosts the
// command channel, the reward sequence controller and the HTTP surface the
// operator UI talks to.
package main

func main() {
	Execute()
}
