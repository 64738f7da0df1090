//go:build windows

package main

import "syscall"

// setConsoleUTF8 switches the console code pages to CP 65001 so git output
// with non-ASCII paths renders correctly when run from a terminal.
func setConsoleUTF8() {
	kernel32 := syscall.NewLazyDLL("kernel32.dll")
	kernel32.NewProc("SetConsoleOutputCP").Call(65001)
	kernel32.NewProc("SetConsoleCP").Call(65001)
}
