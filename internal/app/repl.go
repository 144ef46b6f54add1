package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Status(ctx context.Context) error
	Pending(ctx context.Context) error
	Sync(ctx context.Context) error
	AutoSync(ctx context.Context, mode string) error
	Company(ctx context.Context) error
	SetCompany(ctx context.Context) error
	Customers(ctx context.Context, search string) error
	AddCustomer(ctx context.Context) error
	EditCustomer(ctx context.Context, id string) error
	Products(ctx context.Context, search string) error
	AddProduct(ctx context.Context) error
	EditProduct(ctx context.Context, id string) error
	Invoices(ctx context.Context, from, to string) error
	AddInvoice(ctx context.Context) error
	EditInvoice(ctx context.Context, id string) error
	Delete(ctx context.Context, kind, id string) error
}

const (
	helpRecords = "company, setcompany, customers [search], addcustomer, editcustomer <id>, " +
		"products [search], addproduct, editproduct <id>, invoices [from to], addinvoice, editinvoice <id>, delete, exit"
	helpSignedOut = "Available commands: login, status, pending, " + helpRecords
	helpSignedIn  = "Available commands: logout, status, pending, sync, autosync on|off, " + helpRecords
)

// runREPL reads one command per line from reader and dispatches it to a
// until the input ends or the user types exit. Handler errors are printed
// and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, w io.Writer) {
	for {
		fmt.Fprintf(w, "billsync %s> ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				fmt.Fprintln(w, helpSignedIn)
			} else {
				fmt.Fprintln(w, helpSignedOut)
			}
		case "login":
			cmdErr = a.Login(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "pending":
			cmdErr = a.Pending(ctx)
		case "sync":
			cmdErr = a.Sync(ctx)
		case "autosync":
			if len(args) != 1 {
				fmt.Fprintln(w, "Usage: autosync on|off")
				continue
			}
			cmdErr = a.AutoSync(ctx, args[0])
		case "company":
			cmdErr = a.Company(ctx)
		case "setcompany":
			cmdErr = a.SetCompany(ctx)
		case "customers":
			cmdErr = a.Customers(ctx, strings.Join(args, " "))
		case "addcustomer":
			cmdErr = a.AddCustomer(ctx)
		case "products":
			cmdErr = a.Products(ctx, strings.Join(args, " "))
		case "addproduct":
			cmdErr = a.AddProduct(ctx)
		case "invoices":
			switch len(args) {
			case 0:
				cmdErr = a.Invoices(ctx, "", "")
			case 2:
				cmdErr = a.Invoices(ctx, args[0], args[1])
			default:
				fmt.Fprintln(w, "Usage: invoices [from to], dates as YYYY-MM-DD")
				continue
			}
		case "addinvoice":
			cmdErr = a.AddInvoice(ctx)
		case "editcustomer", "editproduct", "editinvoice":
			if len(args) != 1 {
				fmt.Fprintf(w, "Usage: %s <id>\n", cmd)
				continue
			}
			switch cmd {
			case "editcustomer":
				cmdErr = a.EditCustomer(ctx, args[0])
			case "editproduct":
				cmdErr = a.EditProduct(ctx, args[0])
			default:
				cmdErr = a.EditInvoice(ctx, args[0])
			}
		case "delete":
			if len(args) != 2 {
				fmt.Fprintln(w, "Usage: delete customer|product|invoice <id>")
				continue
			}
			cmdErr = a.Delete(ctx, args[0], args[1])
		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return
		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintln(w, "Error:", cmdErr)
		}
		if err != nil {
			return
		}
	}
}
