// Command taskrota assigns recurring tasks to a roster of users.
package main

import "github.com/marcus/taskrota/cmd/taskrota/commands"

func main() {
	commands.Execute()
}
