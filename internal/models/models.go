package models

import "time"

// Account is a registered identity (admin or staff) with credentials
// and verification state. PassHash is never exposed in responses.
type Account struct {
	ID        string
	Email     string
	Username  string
	PassHash  []byte
	Verified  bool
	Roles     []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kind describes one account namespace. The admin and staff workflows
// share all logic and differ only in the values below.
type Kind struct {
	Name          string
	AccountsTable string
	CodesTable    string
	DefaultRoles  []string

	// AutoCredentials marks kinds whose signup takes only an email;
	// username and password are generated server-side.
	AutoCredentials bool
}

var (
	KindAdmin = Kind{
		Name:          "admin",
		AccountsTable: "users",
		CodesTable:    "access_codes",
		DefaultRoles:  []string{"Admin"},
	}

	KindStaff = Kind{
		Name:            "staff",
		AccountsTable:   "staffs",
		CodesTable:      "staff_access_codes",
		DefaultRoles:    []string{"Staff"},
		AutoCredentials: true,
	}
)

// Message is the payload published for the mail sender.
type Message struct {
	Email   string `json:"to"`
	Code    string `json:"code"`
	Purpose string `json:"purpose"`
}
