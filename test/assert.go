package test

import (
	"errors"
	"reflect"
	"testing"
)

func AssertTrue(t *testing.T, condition bool, msg string) bool {
	t.Helper()

	if !condition {
		t.Errorf("Assertion failed: %s", msg)
		return false
	}

	return true
}

func AssertEqual(t *testing.T, expected, actual any) bool {
	t.Helper()

	if !reflect.DeepEqual(expected, actual) {
		t.Errorf(""+
			"Not equal: \n"+
			"Expected: %#v\n"+
			"Actual: %#v", expected, actual)
		return false
	}

	return true
}

func AssertNoError(t *testing.T, err error) bool {
	t.Helper()

	if err != nil {
		t.Errorf("Unexpected error: %v", err)
		return false
	}

	return true
}

func AssertErrorIs(t *testing.T, err, target error) bool {
	t.Helper()

	if !errors.Is(err, target) {
		t.Errorf(""+
			"Error mismatch: \n"+
			"Expected: %v\n"+
			"Actual: %v", target, err)
		return false
	}

	return true
}
