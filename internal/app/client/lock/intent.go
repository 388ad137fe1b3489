package lock

import (
	"errors"
	"fmt"
)

var ErrIntentPending = errors.New("another action is already waiting for unlock")

type IntentKind int

const (
	IntentDisablePIN IntentKind = iota + 1
	IntentChangePIN
	IntentResetPreferences
	IntentLogout
)

func (k IntentKind) String() string {
	switch k {
	case IntentDisablePIN:
		return "disable_pin"
	case IntentChangePIN:
		return "change_pin"
	case IntentResetPreferences:
		return "reset_preferences"
	case IntentLogout:
		return "logout"
	}
	return "unknown"
}

// Intent - действие, требующее повторной проверки PIN-кода.
// NewPIN заполняется только для IntentChangePIN, Force - только для IntentLogout.
type Intent struct {
	Kind   IntentKind
	NewPIN string
	Force  bool
}

func DisablePIN() Intent          { return Intent{Kind: IntentDisablePIN} }
func ChangePIN(pin string) Intent { return Intent{Kind: IntentChangePIN, NewPIN: pin} }
func ResetPreferences() Intent    { return Intent{Kind: IntentResetPreferences} }
func Logout(force bool) Intent    { return Intent{Kind: IntentLogout, Force: force} }

func (i Intent) Validate() error {
	switch i.Kind {
	case IntentDisablePIN, IntentResetPreferences, IntentLogout:
		return nil
	case IntentChangePIN:
		if i.NewPIN == "" {
			return errors.New("change_pin intent requires a new pin")
		}
		return nil
	}
	return fmt.Errorf("unknown intent kind %d", i.Kind)
}

// slot - очередь на одно отложенное действие
type slot struct {
	intent *Intent
}

func (s *slot) put(i Intent) error {
	if s.intent != nil {
		return fmt.Errorf("%w: %s", ErrIntentPending, s.intent.Kind)
	}
	s.intent = &i
	return nil
}

func (s *slot) take() *Intent {
	i := s.intent
	s.intent = nil
	return i
}

func (s *slot) peek() (Intent, bool) {
	if s.intent == nil {
		return Intent{}, false
	}
	return *s.intent, true
}
