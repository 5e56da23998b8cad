package engine

import (
	"reflect"
	"testing"
)

type codecTestUser struct {
	ID   string
	Name string
}

func TestTypedCodecRoundTripsConcreteType(t *testing.T) {
	codec := newTypedCodec(reflect.TypeOf(codecTestUser{}))

	want := codecTestUser{ID: "1", Name: "Ada"}
	data, err := codec.Encode(want)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	got, err := codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	gotUser, ok := got.(codecTestUser)
	if !ok {
		t.Fatalf("Decode() returned %T, want codecTestUser", got)
	}
	if gotUser != want {
		t.Errorf("Decode() = %+v, want %+v", gotUser, want)
	}
}
