// Package change defines the unit of intent (Spec) and the data that flows
// out of planning and generation: Patches and Notes.
package change

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/jward/ripple/internal/naming"
	"github.com/jward/ripple/internal/typemap"
)

// ErrInvalid is returned by Spec.Validate.
var ErrInvalid = errors.New("invalid change spec")

// Kind is the change being propagated.
type Kind string

const (
	AddField    Kind = "add_field"
	RenameField Kind = "rename_field"
	RemoveField Kind = "remove_field"
)

// Params carries the kind-specific arguments of a Spec.
//
//   - add_field: Name, Type, optional Nullable and Length
//   - rename_field: OldName, NewName
//   - remove_field: Name
type Params struct {
	Name     string `json:"name,omitempty" validate:"omitempty,identifier"`
	Type     string `json:"type,omitempty" validate:"omitempty,generic_type"`
	OldName  string `json:"old_name,omitempty" validate:"omitempty,identifier"`
	NewName  string `json:"new_name,omitempty" validate:"omitempty,identifier"`
	Nullable bool   `json:"nullable,omitempty"`
	Length   int    `json:"length,omitempty" validate:"gte=0,lte=65535"`
}

// Spec is a single logical change targeting one symbol.
type Spec struct {
	Kind   Kind   `json:"kind" validate:"required,oneof=add_field rename_field remove_field"`
	Target string `json:"target_symbol_id" validate:"required"`
	Params Params `json:"params"`
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var specValidate *validator.Validate

func init() {
	specValidate = validator.New()
	_ = specValidate.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	})
	_ = specValidate.RegisterValidation("generic_type", func(fl validator.FieldLevel) bool {
		return typemap.Known(fl.Field().String())
	})
	specValidate.RegisterStructValidation(validateParams, Spec{})
}

// validateParams enforces the per-kind parameter requirements.
func validateParams(sl validator.StructLevel) {
	s := sl.Current().Interface().(Spec)
	p := s.Params
	switch s.Kind {
	case AddField:
		if p.Name == "" {
			sl.ReportError(p.Name, "Params.Name", "Name", "required_for_add", "")
		}
		if p.Type == "" {
			sl.ReportError(p.Type, "Params.Type", "Type", "required_for_add", "")
		}
	case RenameField:
		if p.OldName == "" {
			sl.ReportError(p.OldName, "Params.OldName", "OldName", "required_for_rename", "")
		}
		if p.NewName == "" {
			sl.ReportError(p.NewName, "Params.NewName", "NewName", "required_for_rename", "")
		}
		if p.OldName != "" && p.OldName == p.NewName {
			sl.ReportError(p.NewName, "Params.NewName", "NewName", "differs_from_old", "")
		}
	case RemoveField:
		if p.Name == "" {
			sl.ReportError(p.Name, "Params.Name", "Name", "required_for_remove", "")
		}
	}
}

// Validate checks the change. Errors wrap ErrInvalid.
func (s Spec) Validate() error {
	err := specValidate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", strings.TrimPrefix(fe.Namespace(), "Spec."), fe.Tag()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

// FieldName returns the name of the field the change is about: the new
// field for add, the current name for rename and the removed field.
func (s Spec) FieldName() string {
	if s.Kind == RenameField {
		return s.Params.OldName
	}
	return s.Params.Name
}

// Inverse returns the rename that undoes s. Only renames are invertible.
func (s Spec) Inverse() (Spec, bool) {
	if s.Kind != RenameField {
		return Spec{}, false
	}
	inv := s
	inv.Params.OldName, inv.Params.NewName = s.Params.NewName, s.Params.OldName
	return inv, true
}

// String renders a short human description.
func (s Spec) String() string {
	switch s.Kind {
	case AddField:
		return fmt.Sprintf("add field %s: %s", s.Params.Name, s.Params.Type)
	case RenameField:
		return fmt.Sprintf("rename field %s -> %s", s.Params.OldName, s.Params.NewName)
	case RemoveField:
		return fmt.Sprintf("remove field %s", s.Params.Name)
	}
	return string(s.Kind)
}

// NameIn returns the field name converted to conv. For renames it returns
// the old and new names.
func (s Spec) NameIn(conv naming.Convention) (string, string) {
	if s.Kind == RenameField {
		return conv.Apply(s.Params.OldName), conv.Apply(s.Params.NewName)
	}
	return conv.Apply(s.Params.Name), ""
}
