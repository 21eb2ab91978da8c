package authsdk

import "strings"

const requiredReason = "is required"

// Validate checks the login form. It returns nil when the form may be sent.
func (c Credentials) Validate() error {
	errs := ValidationError{}
	if strings.TrimSpace(c.Username) == "" {
		errs["username"] = requiredReason
	}
	if c.Password == "" {
		errs["password"] = requiredReason
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Validate checks the registration form the way the sign-up screens do.
func (r Registration) Validate() error {
	errs := ValidationError{}

	username := strings.TrimSpace(r.Username)
	switch {
	case username == "":
		errs["username"] = requiredReason
	case len(username) < 3:
		errs["username"] = "must be at least 3 characters"
	}

	switch {
	case r.Password == "":
		errs["password"] = requiredReason
	case len(r.Password) < 6:
		errs["password"] = "must be at least 6 characters"
	}

	if r.ConfirmPassword != r.Password {
		errs["confirm_password"] = "does not match password"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
