package vault

import (
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	MaxLabelLen = 64
	MaxNotesLen = 4096
	PINMinLen   = 4
	PINMaxLen   = 16
)

var (
	hexColor = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	pinChars = regexp.MustCompile(`^[0-9]+$`)
)

func (f CustomField) Validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Label, validation.Required, validation.Length(1, MaxLabelLen)),
		validation.Field(&f.Type, validation.Required, validation.In(FieldText, FieldEmail, FieldURL, FieldSecret)),
		validation.Field(&f.Value, validation.When(f.Type == FieldEmail, is.EmailFormat)),
	)
}

// Validate проверяет запрос до отправки на сервер
func (r PasswordRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Label, validation.Required, validation.Length(1, MaxLabelLen)),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Notes, validation.Length(0, MaxNotesLen)),
		validation.Field(&r.Folder, validation.When(r.Folder != "", is.UUID)),
		validation.Field(&r.CustomFields),
		validation.Field(&r.TagIDs, validation.Each(is.UUID)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (r FolderRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Label, validation.Required, validation.Length(1, MaxLabelLen)),
		validation.Field(&r.Parent, validation.When(r.Parent != "", is.UUID)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (r TagRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.Label, validation.Required, validation.Length(1, MaxLabelLen)),
		validation.Field(&r.Color, validation.Required, validation.Match(hexColor)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// ValidateServerURL проверяет адрес сервера перед началом входа
func ValidateServerURL(raw string) error {
	if err := validation.Validate(raw, validation.Required, is.RequestURL); err != nil {
		return fmt.Errorf("%w: server url: %v", ErrValidation, err)
	}
	return nil
}

func ValidatePIN(pin string) error {
	err := validation.Validate(pin,
		validation.Required,
		validation.Length(PINMinLen, PINMaxLen),
		validation.Match(pinChars).Error("must contain only digits"),
	)
	if err != nil {
		return fmt.Errorf("%w: pin: %v", ErrValidation, err)
	}
	return nil
}
