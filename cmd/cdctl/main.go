// Command cdctl drives a USB CD/DVD drive through the cdrom request table.
package main

func main() {
	Execute()
}
