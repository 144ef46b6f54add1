// Package app wires the billsync components together and runs the
// interactive command loop.
//
// Commands
//
//	help                      show available commands
//	login | logout            start or end a session (token read without echo)
//	status                    connectivity, sync state and last sync times
//	pending                   records not yet acknowledged by the remote store
//	sync                      run a full sync now
//	autosync on|off           real-time listeners and interval syncs
//	company | setcompany      show or edit the company profile
//	customers [search]        list customers, optionally by name or phone
//	addcustomer               add a customer
//	editcustomer <id>         edit a customer, empty answers keep values
//	products [search]         list products, optionally by name or description
//	addproduct                add a product
//	editproduct <id>          edit a product
//	invoices [from to]        list invoices, optionally dated from..to
//	addinvoice                add an invoice
//	editinvoice <id>          edit an invoice's date, customer and payment
//	delete <kind> <id>        delete a customer, product or invoice
//	exit | quit               leave the program
package app
