package limits

import (
	"errors"
	"testing"
)

func TestValidateBodySize(t *testing.T) {
	if err := ValidateBodySize(0); err != nil {
		t.Errorf("empty body should be valid, got %v", err)
	}
	if err := ValidateBodySize(MaxPacketBody); err != nil {
		t.Errorf("body at limit should be valid, got %v", err)
	}
	if err := ValidateBodySize(MaxPacketBody + 1); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestValidateMediaBody(t *testing.T) {
	if err := ValidateMediaBody(nil); !errors.Is(err, ErrEmptyBody) {
		t.Errorf("expected ErrEmptyBody, got %v", err)
	}
	if err := ValidateMediaBody(make([]byte, MaxMediaBody)); err != nil {
		t.Errorf("media body at limit should be valid, got %v", err)
	}
	if err := ValidateMediaBody(make([]byte, MaxMediaBody+1)); !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge, got %v", err)
	}
}

func TestMediaBodyFitsDatagram(t *testing.T) {
	if MaxMediaBody+HeaderSize != MaxDatagram {
		t.Errorf("MaxMediaBody + HeaderSize = %d, want %d", MaxMediaBody+HeaderSize, MaxDatagram)
	}
}
