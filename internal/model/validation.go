package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

func check(kind string, v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %s request: %w", kind, err)
	}
	return nil
}

// Validate checks a single price entry with the rules applied inside a
// receipt request.
func (p *Price) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid price for %q: %w", p.ProductID, err)
	}
	return nil
}

func (r *RegisterInstallRequest) Validate() error { return check("register_install", r) }

func (r *AdServicesTokenRequest) Validate() error { return check("adservices_token", r) }

func (r *ReceiptRequest) Validate() error { return check("receipt", r) }

func (r *SetRequest) Validate() error {
	if len(r.Parameters) == 0 && r.ExternalUserID == "" && r.InternalUserID == "" {
		return fmt.Errorf("invalid set request: nothing to set")
	}
	return check("set", r)
}
