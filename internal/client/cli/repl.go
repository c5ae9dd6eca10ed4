package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests provide a stub.
type execIface interface {
	isReady() bool
	isRemote() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Categories(ctx context.Context) error
	AddCategory(ctx context.Context) error
	RenameCategory(ctx context.Context) error
	RemoveCategory(ctx context.Context) error
	List(ctx context.Context) error
	AddNote(ctx context.Context) error
	Show(ctx context.Context) error
	Search(ctx context.Context) error
	Remove(ctx context.Context) error
}

// runREPL reads a line from the scanner, parses the first token as the
// command and dispatches to methods on 'a'. The loop exits on scanner EOF or
// when the user types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers log their
// own errors. This keeps the loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("plainly %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isReady() {
				printlnFn("Available commands: (l)ist, add, show, search, rm, cats, mkcat, mvcat, rmcat, passwd, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "passwd":
			_ = a.ChangePassword(ctx)

		case "cats":
			_ = a.Categories(ctx)

		case "mkcat":
			_ = a.AddCategory(ctx)

		case "mvcat":
			_ = a.RenameCategory(ctx)

		case "rmcat":
			_ = a.RemoveCategory(ctx)

		case "l", "list":
			_ = a.List(ctx)

		case "add":
			_ = a.AddNote(ctx)

		case "show":
			_ = a.Show(ctx)

		case "search":
			_ = a.Search(ctx)

		case "rm":
			_ = a.Remove(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
