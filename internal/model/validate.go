// Copyright (C) 2026 Kittwire Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package model

import (
	"fmt"

	"github.com/go-openapi/strfmt"
)

// ValidatePerson checks the identity fields of a Person before it is
// handed to the object store. Email is the declared id field
// (spec.md §3); strfmt.Email gives us RFC-shaped validation instead
// of a hand-rolled regexp.
func ValidatePerson(p Person) error {
	if p.Email == "" {
		return fmt.Errorf("model: person email is required")
	}
	email := strfmt.Email(p.Email)
	if err := email.Validate(nil); err != nil {
		return fmt.Errorf("model: invalid person email %q: %w", p.Email, err)
	}
	if p.DisplayName == "" {
		return fmt.Errorf("model: person display name is required")
	}
	return nil
}
