package types

import "testing"

func TestServiceState_String(t *testing.T) {
	tests := []struct {
		state ServiceState
		want  string
	}{
		{StateDisabled, "Disabled"},
		{StateTemporaryUnavailable, "TemporaryUnavailable"},
		{StateAuthenticationRequired, "AuthenticationRequired"},
		{StateOk, "Ok"},
		{ServiceState(42), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ServiceState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
