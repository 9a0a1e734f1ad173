package main

import "github.com/talpa/pet-management-sub001/cmd/petadmin/cmd"

func main() {
	cmd.Execute()
}
